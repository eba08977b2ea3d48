package main

import (
	"pairstream/config"
	"pairstream/internal/app"
	"pairstream/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// run pipeline
	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatal("failed to assemble pipeline", zap.Error(err))
	}
	if err := a.Run(); err != nil {
		log.Fatal("pipeline failed", zap.Error(err))
	}
}
