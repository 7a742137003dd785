package sink

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/monitoring"
)

// Drawer is the subset of *ssd1306.Dev used by Display.
type Drawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// Display shows the latest result on an SSD1306 OLED.
type Display struct {
	dev   Drawer
	close func() error
}

// OpenDisplay initializes an SSD1306 on the default I²C bus and shows the
// splash screen.
func OpenDisplay() (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	monitoring.Logf("display: initialized on I2C bus %s", bus)

	d := newDisplay(dev, func() error { return closeDisplay(dev, bus) })
	if err := d.Splash(); err != nil {
		monitoring.Logf("display: error showing splash: %v", err)
	}
	return d, nil
}

func closeDisplay(dev *ssd1306.Dev, bus i2c.BusCloser) error {
	herr := dev.Halt()
	berr := bus.Close()
	if herr != nil {
		return herr
	}
	return berr
}

func newDisplay(dev Drawer, closeFn func() error) *Display {
	return &Display{dev: dev, close: closeFn}
}

func (d *Display) Name() string { return "display" }

// Splash shows the startup screen.
func (d *Display) Splash() error {
	img := newFrame(d.dev.Bounds())
	drawLines(img, []string{"Activity", "Recognizer", "Waiting..."})
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *Display) Emit(r activity.Result) error {
	img := RenderResult(r, d.dev.Bounds())
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *Display) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

// RenderResult draws a result as up to four text lines.
func RenderResult(r activity.Result, bounds image.Rectangle) *image1bit.VerticalLSB {
	img := newFrame(bounds)
	label := strings.ReplaceAll(string(r.Label), "_", " ")
	lines := []string{label, fmt.Sprintf("conf %.2f", r.Confidence)}
	if r.Label == activity.Unknown {
		lines = append(lines, fmt.Sprintf("raw %d %.2f", r.RawIndex, r.RawConfidence))
	}
	lines = append(lines, fmt.Sprintf("win #%d", r.WindowSeq))
	drawLines(img, lines)
	return img
}

func newFrame(bounds image.Rectangle) *image1bit.VerticalLSB {
	if bounds.Empty() {
		bounds = image.Rect(0, 0, 128, 64)
	}
	return image1bit.NewVerticalLSB(bounds)
}

// drawLines writes lines top to bottom, 13 px apart.
func drawLines(img *image1bit.VerticalLSB, lines []string) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
}
