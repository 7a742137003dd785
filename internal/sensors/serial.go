package sensors

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

// SerialConfig selects the serial port of an IMU streaming IMACC/IMGYR
// sentences.
type SerialConfig struct {
	PortName string
	BaudRate uint
}

// Serial reads NMEA-framed accelerometer and gyroscope sentences from a
// serial port. The device sets the cadence.
type Serial struct {
	cfg    SerialConfig
	open   func(serial.OpenOptions) (io.ReadWriteCloser, error)
	parser *nmea.SentenceParser

	mu      sync.Mutex
	port    io.ReadWriteCloser
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewSerial creates a driver for the port described by cfg.
func NewSerial(cfg SerialConfig) *Serial {
	return &Serial{cfg: cfg, open: serial.Open, parser: newMotionParser()}
}

func (d *Serial) Name() string { return "serial" }

func (d *Serial) options() serial.OpenOptions {
	return serial.OpenOptions{
		PortName:              d.cfg.PortName,
		BaudRate:              d.cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
}

func (d *Serial) Subscribe(interval time.Duration, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("%w: serial: already subscribed", ErrDriverUnavailable)
	}
	port, err := d.open(d.options())
	if err != nil {
		return fmt.Errorf("%w: serial open %s: %w", ErrDriverUnavailable, d.cfg.PortName, err)
	}
	monitoring.Logf("serial driver: port opened on %s at %d baud (expecting one sample every %v)", d.cfg.PortName, d.cfg.BaudRate, interval)

	d.port = port
	d.stop = make(chan struct{})
	d.running = true
	d.wg.Add(1)
	go d.read(port, d.stop, h)
	return nil
}

func (d *Serial) read(port io.Reader, stop <-chan struct{}, h Handler) {
	defer d.wg.Done()
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		select {
		case <-stop:
			return
		default:
		}
		d.handleLine(scanner.Text(), h)
	}

	select {
	case <-stop:
		return
	default:
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	h.OnError(fmt.Errorf("serial %s: read: %w", d.cfg.PortName, err))
}

func (d *Serial) handleLine(line string, h Handler) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return
	}
	s, err := d.parser.Parse(line)
	if err != nil {
		// noisy line or partial sentence
		monitoring.Logf("serial driver: parse error: %v (line: %q)", err, line)
		return
	}
	m, ok := s.(Motion)
	if !ok {
		return
	}
	switch m.DataType() {
	case TypeACC:
		h.OnAccel(m.Reading(time.Now()))
	case TypeGYR:
		h.OnGyro(m.Reading(time.Now()))
	}
}

func (d *Serial) Unsubscribe() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	close(d.stop)
	d.running = false
	err := d.port.Close()
	d.port = nil
	d.mu.Unlock()

	d.wg.Wait()
	if err != nil {
		return fmt.Errorf("serial close %s: %w", d.cfg.PortName, err)
	}
	return nil
}
