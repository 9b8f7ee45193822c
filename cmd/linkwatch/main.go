package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"linkwatch/internal/app"
	logx "linkwatch/pkg/logx"
	"linkwatch/pkg/sdnotify"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	// Bootstrap logger for failures before the app's log service exists.
	boot := logx.NewConsole("info")

	// Local deployments keep the Discord token in a .env next to the binary.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		boot.Error("start failed", logx.Err(err))
		os.Exit(1)
	}
	sdnotify.Ready()
	go sdnotify.Watchdog(ctx)

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	sdnotify.Stopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		boot.Warn("shutdown incomplete", logx.Err(err))
	}
	if err := a.Err(); err != nil {
		boot.Error("exited with error", logx.Err(err))
		os.Exit(1)
	}
}
