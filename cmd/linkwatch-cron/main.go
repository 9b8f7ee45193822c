package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"linkwatch/internal/app"
	logx "linkwatch/pkg/logx"
)

// linkwatch-cron runs exactly one poll cycle and exits. State lives in a
// remote blob between runs; see the blob section of the config.
func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunOnce(ctx, cfgPath); err != nil {
		logx.NewConsole("info").Error("run failed", logx.Err(err))
		os.Exit(1)
	}
}
