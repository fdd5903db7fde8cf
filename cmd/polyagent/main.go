package main

import (
	"context"
	"log"
	"os"

	"polyagent/internal/app"
	"polyagent/internal/config"
	"polyagent/internal/logger"
)

func main() {
	cfgPath := os.Getenv("POLYAGENT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.toml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}

	secrets := config.SecretsFromEnv()
	level := cfg.Monitoring.LogLevel
	if secrets.LogLevel != "" {
		level = secrets.LogLevel
	}
	logger.SetLevel(level)
	logger.Infof("polyagent starting mode=%s interval=%ds db=%s",
		cfg.Agent.Mode, cfg.Agent.CycleIntervalSeconds, cfg.Database.Path)

	application, err := app.New(cfg, secrets)
	if err != nil {
		log.Fatalf("initializing agent failed: %v", err)
	}
	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("agent stopped: %v", err)
	}
}
