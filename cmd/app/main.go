package main

import (
	"flag"
	"log"
	"os"

	"SigWatch/internal/di"
	"SigWatch/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s state=%s runlog=%s alerts=%s",
		cfg.Environment, cfg.State.Backend, cfg.RunLog.Backend, cfg.Alerts.Transport)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
