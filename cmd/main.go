package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/greenloop/recircle-backend/internal/app"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
)

func main() {
	logMode := os.Getenv("MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(log)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		log.Sync()
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		log.Info("Shutting down", "signal", sig.String())
		a.Close()
		os.Exit(0)
	}()

	addr := ":" + a.Cfg.Port
	log.Info("Server listening", "addr", addr)
	if err := a.Run(addr); err != nil {
		log.Error("Server failed", "error", err)
	}
}
