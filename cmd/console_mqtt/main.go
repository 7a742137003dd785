package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/activity_recognizer/internal/app"
	"github.com/relabs-tech/activity_recognizer/internal/config"
)

func main() {
	configPath := flag.String("config", "./activity_config.txt", "path to configuration file")
	raw := flag.Bool("raw", false, "also print raw IMU samples")
	flag.Parse()

	log.Println("starting activity console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(*raw); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
