package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
# recognizer
MODEL_PATH = models/activity_11.json
DRIVER=mqtt
MQTT_BROKER=tcp://pi.local:1883
WINDOW_SIZE=100
SAMPLE_INTERVAL=20
CONFIDENCE_THRESHOLD=0.65
LABEL_SET=19
IMU_ACCEL_RANGE=2
INFERENCE_TIMEOUT=250
DISPLAY_ENABLED=true
AUTO_START=false
STRICT_CONSUMER=1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "models/activity_11.json", cfg.ModelPath)
	assert.Equal(t, DriverMQTT, cfg.Driver)
	assert.Equal(t, "tcp://pi.local:1883", cfg.MQTTBroker)
	assert.Equal(t, 100, cfg.WindowSize)
	assert.Equal(t, 20*time.Millisecond, cfg.SampleIntervalDuration())
	assert.InDelta(t, 0.65, cfg.ConfidenceThreshold, 1e-12)
	assert.Equal(t, 19, cfg.LabelSet)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, 250*time.Millisecond, cfg.InferenceTimeoutDuration())
	assert.True(t, cfg.DisplayEnabled)
	assert.False(t, cfg.AutoStart)
	assert.True(t, cfg.StrictConsumer)

	// untouched keys keep their defaults
	assert.Equal(t, Default().TopicActivity, cfg.TopicActivity)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing model", "DRIVER=mock\n"},
		{"no equals", "MODEL_PATH=m.json\nWINDOW_SIZE\n"},
		{"unknown key", "MODEL_PATH=m.json\nFOO=1\n"},
		{"bad window", "MODEL_PATH=m.json\nWINDOW_SIZE=0\n"},
		{"bad threshold", "MODEL_PATH=m.json\nCONFIDENCE_THRESHOLD=1.5\n"},
		{"bad label set", "MODEL_PATH=m.json\nLABEL_SET=12\n"},
		{"bad accel range", "MODEL_PATH=m.json\nIMU_ACCEL_RANGE=4\n"},
		{"unknown driver", "MODEL_PATH=m.json\nDRIVER=can\n"},
		{"serial without port", "MODEL_PATH=m.json\nDRIVER=serial\n"},
		{"bad bool", "MODEL_PATH=m.json\nAUTO_START=sometimes\n"},
		{"negative timeout", "MODEL_PATH=m.json\nINFERENCE_TIMEOUT=-1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestDefault_IsTwoSecondWindow(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2*time.Second, time.Duration(cfg.WindowSize)*cfg.SampleIntervalDuration())
	assert.Equal(t, 0.5, cfg.ConfidenceThreshold)
}
