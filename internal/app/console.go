// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/activity_recognizer/internal/activity"
	"github.com/relabs-tech/activity_recognizer/internal/config"
	"github.com/relabs-tech/activity_recognizer/internal/model"
)

// consoleSink prints each result as one line.
type consoleSink struct {
	w io.Writer
}

func (c consoleSink) Name() string { return "console" }

func (c consoleSink) Emit(r activity.Result) error {
	_, err := fmt.Fprintln(c.w, formatResult(r))
	return err
}

// RunConsole runs a single session in the foreground and prints results,
// without the web server or MQTT.
func RunConsole() error {
	cfg := config.Get()

	m, err := model.LoadLinear(cfg.ModelPath)
	if err != nil {
		return err
	}
	driver, err := NewDriver(cfg)
	if err != nil {
		m.Close()
		return err
	}

	// the console always runs a session, whatever AUTO_START says
	local := *cfg
	local.AutoStart = true
	rec, err := NewRecognizer(&local, driver, m, consoleSink{w: os.Stdout})
	if err != nil {
		m.Close()
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			log.Printf("console: shutdown: %v", err)
		}
	}()
	if err := rec.Start(); err != nil {
		return err
	}
	log.Printf("console: %s driver, %d-sample windows every %v", driver.Name(), cfg.WindowSize, cfg.SampleIntervalDuration())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("console: shutting down")
	return nil
}
