package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kimy-labs/kimy/pkg/app"
	"github.com/kimy-labs/kimy/pkg/config"
	"github.com/kimy-labs/kimy/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	container, err := app.New(cfg)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Start(ctx); err != nil {
		logger.Error(err.Error())
		container.Stop()
		os.Exit(1)
	}

	logger.InfoCF("main", "Bot is up", map[string]interface{}{
		"bot_name": cfg.BotName,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.InfoC("main", "Shutting down")
	cancel()
	container.Stop()
}
