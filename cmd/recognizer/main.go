// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/activity_recognizer/internal/app"
	"github.com/relabs-tech/activity_recognizer/internal/config"
)

func main() {
	configPath := flag.String("config", "./activity_config.txt", "path to configuration file")
	webDir := flag.String("web", "web", "directory served at /")
	flag.Parse()

	log.Println("starting activity recognizer (sensor → windows → classifier → sinks)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	app.StaticDir = *webDir

	if err := app.RunRecognizer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
