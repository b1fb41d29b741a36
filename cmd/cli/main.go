package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/preshare/internal/buildinfo"
	"github.com/dmitrijs2005/preshare/internal/client/cli"
	"github.com/dmitrijs2005/preshare/internal/client/config"
	"github.com/dmitrijs2005/preshare/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, "text", cfg.LogLevel)

	app, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
