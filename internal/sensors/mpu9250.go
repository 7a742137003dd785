// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/activity_recognizer/internal/imu"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

// DefaultMaxReadFailures is the number of consecutive failed reads after
// which the MPU9250 driver reports a fault.
const DefaultMaxReadFailures = 5

// IMURawReader defines the interface for reading raw IMU data.
type IMURawReader interface {
	ReadRaw() (imu.IMURaw, error)
}

// MPU9250Config selects the SPI device and sensor ranges.
type MPU9250Config struct {
	Name       string // for logging
	SPIDevice  string
	CSPin      string
	AccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	GyroRange  byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
}

type imuSource struct {
	name string
	dev  *mpu9250.MPU9250
}

// OpenMPU9250 initializes an MPU9250 over SPI: ranges, self-test and
// calibration. Self-test and calibration failures are logged, not fatal.
func OpenMPU9250(cfg MPU9250Config) (IMURawReader, error) {
	name := cfg.Name
	if name == "" {
		name = "mpu9250"
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(cfg.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%s: CS pin %q not found", name, cfg.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("%s: SPI transport (%s): %w", name, cfg.SPIDevice, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(cfg.AccelRange); err != nil {
		return nil, fmt.Errorf("%s: set accel range: %w", name, err)
	}
	monitoring.Logf("%s: accelerometer range set to %d (±%dg)", name, cfg.AccelRange, []int{2, 4, 8, 16}[cfg.AccelRange&3])

	if err := dev.SetGyroRange(cfg.GyroRange); err != nil {
		return nil, fmt.Errorf("%s: set gyro range: %w", name, err)
	}
	monitoring.Logf("%s: gyroscope range set to %d (±%d°/s)", name, cfg.GyroRange, []int{250, 500, 1000, 2000}[cfg.GyroRange&3])

	testResult, err := dev.SelfTest()
	if err != nil {
		monitoring.Logf("Warning: %s self-test failed: %v", name, err)
	} else {
		monitoring.Logf("%s self-test passed: accel deviation X=%.2f%% Y=%.2f%% Z=%.2f%%, gyro deviation X=%.2f%% Y=%.2f%% Z=%.2f%%", name,
			testResult.AccelDeviation.X, testResult.AccelDeviation.Y, testResult.AccelDeviation.Z,
			testResult.GyroDeviation.X, testResult.GyroDeviation.Y, testResult.GyroDeviation.Z)
	}

	if err := dev.Calibrate(); err != nil {
		monitoring.Logf("Warning: %s calibration failed: %v", name, err)
	} else {
		monitoring.Logf("%s calibration complete", name)
	}

	return &imuSource{name: name, dev: dev}, nil
}

// ReadRaw reads accelerometer and gyroscope counts.
func (s *imuSource) ReadRaw() (imu.IMURaw, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s accel X: %w", s.name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s accel Y: %w", s.name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s accel Z: %w", s.name, err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s gyro X: %w", s.name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s gyro Y: %w", s.name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source: s.name,
		TimeMs: time.Now().UnixMilli(),
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}

// MPU9250 polls a local MPU9250 and delivers both streams in one event per
// read. The device is opened on the first Subscribe and kept open.
type MPU9250 struct {
	cfg         MPU9250Config
	open        func(MPU9250Config) (IMURawReader, error)
	maxFailures int

	mu      sync.Mutex
	src     IMURawReader
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMPU9250 creates a driver for the device described by cfg.
func NewMPU9250(cfg MPU9250Config) *MPU9250 {
	return &MPU9250{cfg: cfg, open: OpenMPU9250, maxFailures: DefaultMaxReadFailures}
}

// newMPU9250FromReader creates a driver around an already opened reader.
func newMPU9250FromReader(cfg MPU9250Config, src IMURawReader) *MPU9250 {
	d := NewMPU9250(cfg)
	d.src = src
	return d
}

func (d *MPU9250) Name() string { return "mpu9250" }

func (d *MPU9250) Subscribe(interval time.Duration, h Handler) error {
	if interval <= 0 {
		return fmt.Errorf("%w: mpu9250: interval must be positive", ErrDriverUnavailable)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("%w: mpu9250: already subscribed", ErrDriverUnavailable)
	}
	if d.src == nil {
		src, err := d.open(d.cfg)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDriverUnavailable, err)
		}
		d.src = src
	}
	d.stop = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.poll(interval, d.src, d.stop, h)
	return nil
}

func (d *MPU9250) poll(interval time.Duration, src IMURawReader, stop <-chan struct{}, h Handler) {
	defer d.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			raw, err := src.ReadRaw()
			if err != nil {
				failures++
				monitoring.Logf("mpu9250: read error (%d/%d): %v", failures, d.maxFailures, err)
				if failures >= d.maxFailures {
					h.OnError(fmt.Errorf("mpu9250: %d consecutive read failures: %w", failures, err))
					return
				}
				continue
			}
			failures = 0
			accel, gyro := raw.Readings(d.cfg.AccelRange, d.cfg.GyroRange, t)
			deliver(h, accel, gyro)
		}
	}
}

func (d *MPU9250) Unsubscribe() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	close(d.stop)
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
