package sensors

import (
	"fmt"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
)

// Sentence types emitted by the serial IMU, with talker ID "IM":
//
//	$IMACC,<ax>,<ay>,<az>,<unix ms>*CS   accel in m/s²
//	$IMGYR,<gx>,<gy>,<gz>,<unix ms>*CS   gyro in rad/s
const (
	TypeACC = "ACC"
	TypeGYR = "GYR"
)

// Motion is a parsed IMACC or IMGYR sentence.
type Motion struct {
	nmea.BaseSentence
	X, Y, Z float64
	TimeMs  int64
}

// Reading converts the sentence into an imu.Reading. A zero timestamp falls
// back to now.
func (m Motion) Reading(now time.Time) imu.Reading {
	t := now
	if m.TimeMs != 0 {
		t = time.UnixMilli(m.TimeMs)
	}
	return imu.Reading{X: m.X, Y: m.Y, Z: m.Z, Time: t}
}

func parseMotion(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	m := Motion{
		BaseSentence: s,
		X:            p.Float64(0, "x"),
		Y:            p.Float64(1, "y"),
		Z:            p.Float64(2, "z"),
		TimeMs:       p.Int64(3, "time ms"),
	}
	return m, p.Err()
}

// newMotionParser returns a parser that knows the IMU sentences in addition
// to the standard NMEA set.
func newMotionParser() *nmea.SentenceParser {
	return &nmea.SentenceParser{
		CustomParsers: map[string]nmea.ParserFunc{
			TypeACC: parseMotion,
			TypeGYR: parseMotion,
		},
	}
}

// FormatMotion renders a sentence with its checksum, as emitted by the
// serial IMU firmware.
func FormatMotion(sentenceType string, r imu.Reading) string {
	body := fmt.Sprintf("IM%s,%.5f,%.5f,%.5f,%d", sentenceType, r.X, r.Y, r.Z, r.Time.UnixMilli())
	return "$" + body + "*" + nmea.Checksum(body)
}
