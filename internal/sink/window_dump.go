package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/relabs-tech/activity_recognizer/internal/window"
)

var dumpHeader = []string{"ax", "ay", "az", "gx", "gy", "gz"}

// WindowDump overwrites a CSV file with the most recent window, one sample
// per row. It is registered as the dispatcher's window observer.
type WindowDump struct {
	path string
}

// NewWindowDump writes to path.
func NewWindowDump(path string) *WindowDump {
	return &WindowDump{path: path}
}

// ObserveWindow replaces the dump file with w. The file is written to a
// temporary name and renamed, so readers never see a torn window.
func (d *WindowDump) ObserveWindow(w window.Window) error {
	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".window-*.csv")
	if err != nil {
		return fmt.Errorf("window dump: %w", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(dumpHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("window dump: %w", err)
	}
	row := make([]string, len(dumpHeader))
	for i := 0; i < w.Len(); i++ {
		for j, v := range w.Row(i) {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("window dump: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("window dump: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("window dump: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("window dump: %w", err)
	}
	return nil
}
