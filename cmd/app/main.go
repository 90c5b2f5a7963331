package main

import (
	"flag"
	"log"
	"os"

	"CoinTrend/internal/di"
	"CoinTrend/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s match_mode=%s decay_period=%.0fs percentiles=%d",
		cfg.Environment, cfg.Chance.MatchMode, cfg.Chance.DecayPeriod, cfg.Chance.PercentileAmount)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
