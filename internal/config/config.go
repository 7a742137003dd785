package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sensor driver names accepted by DRIVER.
const (
	DriverMock    = "mock"
	DriverMPU9250 = "mpu9250"
	DriverMQTT    = "mqtt"
	DriverSerial  = "serial"
)

// Config holds all application configuration values.
type Config struct {
	// Sensor driver: "mock", "mpu9250", "mqtt" or "serial"
	Driver string

	// MQTT
	MQTTBroker             string
	MQTTClientIDRecognizer string
	MQTTClientIDIMU        string
	MQTTClientIDConsole    string

	// Topics
	TopicIMU      string // raw IMU samples (input for the mqtt driver)
	TopicActivity string // classification results

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// Serial IMU
	SerialPort     string
	SerialBaudRate int

	// Windowing
	WindowSize     int  // samples per window
	SampleInterval int  // milliseconds
	AutoStart      bool // start a session at launch
	StrictConsumer bool // overlapping window takes fail instead of blocking

	// Classification
	ConfidenceThreshold float64
	LabelSet            int    // 11 or 19
	ModelPath           string // packaged model artifact
	InferenceTimeout    int    // milliseconds, 0 = unbounded
	ResultBuffer        int    // result channel capacity

	// Sinks
	SessionLogPath string
	WindowDumpPath string
	ResultsDBPath  string
	DisplayEnabled bool

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal() and Get().
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys absent from the file:
// 200-sample windows at 10 ms (2 s at 100 Hz) with the mock driver.
func Default() *Config {
	return &Config{
		Driver:                 DriverMock,
		MQTTBroker:             "tcp://localhost:1883",
		MQTTClientIDRecognizer: "activity-recognizer",
		MQTTClientIDIMU:        "activity-imu-producer",
		MQTTClientIDConsole:    "activity-console",
		TopicIMU:               "activity/imu/raw",
		TopicActivity:          "activity/result",
		IMUSPIDevice:           "/dev/spidev0.0",
		IMUCSPin:               "8",
		SerialBaudRate:         115200,
		WindowSize:             200,
		SampleInterval:         10,
		AutoStart:              true,
		ConfidenceThreshold:    0.5,
		LabelSet:               11,
		ResultBuffer:           16,
		SessionLogPath:         "activity_session.txt",
		WebServerPort:          8080,
	}
}

// Load reads the configuration file on top of Default().
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseRange(key, value string, max int, help string) (byte, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("%s must be 0-%d (%s), got %d", key, max, help, v)
	}
	return byte(v), nil
}

func parsePositive(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "DRIVER":
		c.Driver = strings.ToLower(value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RECOGNIZER":
		c.MQTTClientIDRecognizer = value
	case "MQTT_CLIENT_ID_IMU":
		c.MQTTClientIDIMU = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_IMU":
		c.TopicIMU = value
	case "TOPIC_ACTIVITY":
		c.TopicActivity = value

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		c.IMUAccelRange, err = parseRange(key, value, 3, "0=±2g, 1=±4g, 2=±8g, 3=±16g")
	case "IMU_GYRO_RANGE":
		c.IMUGyroRange, err = parseRange(key, value, 3, "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s")

	// Serial IMU
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parsePositive(key, value)

	// Windowing
	case "WINDOW_SIZE":
		c.WindowSize, err = parsePositive(key, value)
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parsePositive(key, value)
	case "AUTO_START":
		c.AutoStart, err = parseBool(key, value)
	case "STRICT_CONSUMER":
		c.StrictConsumer, err = parseBool(key, value)

	// Classification
	case "CONFIDENCE_THRESHOLD":
		v, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return fmt.Errorf("invalid CONFIDENCE_THRESHOLD %q: %w", value, perr)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0,1], got %g", v)
		}
		c.ConfidenceThreshold = v
	case "LABEL_SET":
		v, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid LABEL_SET %q: %w", value, perr)
		}
		if v != 11 && v != 19 {
			return fmt.Errorf("LABEL_SET must be 11 or 19, got %d", v)
		}
		c.LabelSet = v
	case "MODEL_PATH":
		c.ModelPath = value
	case "INFERENCE_TIMEOUT":
		v, perr := strconv.Atoi(value)
		if perr != nil {
			return fmt.Errorf("invalid INFERENCE_TIMEOUT %q: %w", value, perr)
		}
		if v < 0 {
			return fmt.Errorf("INFERENCE_TIMEOUT must not be negative, got %d", v)
		}
		c.InferenceTimeout = v
	case "RESULT_BUFFER":
		c.ResultBuffer, err = parsePositive(key, value)

	// Sinks
	case "SESSION_LOG_PATH":
		c.SessionLogPath = value
	case "WINDOW_DUMP_PATH":
		c.WindowDumpPath = value
	case "RESULTS_DB_PATH":
		c.ResultsDBPath = value
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePositive(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	switch c.Driver {
	case DriverMock:
	case DriverMPU9250:
		if c.IMUSPIDevice == "" || c.IMUCSPin == "" {
			return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required for the mpu9250 driver")
		}
	case DriverMQTT:
		if c.MQTTBroker == "" || c.TopicIMU == "" {
			return fmt.Errorf("MQTT_BROKER and TOPIC_IMU are required for the mqtt driver")
		}
	case DriverSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for the serial driver")
		}
	default:
		return fmt.Errorf("unknown DRIVER %q", c.Driver)
	}
	return nil
}

// SampleIntervalDuration returns SAMPLE_INTERVAL as a time.Duration.
func (c *Config) SampleIntervalDuration() time.Duration {
	return time.Duration(c.SampleInterval) * time.Millisecond
}

// InferenceTimeoutDuration returns INFERENCE_TIMEOUT as a time.Duration.
func (c *Config) InferenceTimeoutDuration() time.Duration {
	return time.Duration(c.InferenceTimeout) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
