package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/preshare/internal/flagx"
)

var knownFlags = []string{"-s", "-g", "-d", "-o", "-m", "-t", "-k", "-l"}

func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("preshare", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the REST API")
	fs.StringVar(&cfg.GatewayAddr, "g", cfg.GatewayAddr, "re-encryption gateway host:port")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.DownloadDir, "o", cfg.DownloadDir, "download directory")
	fs.StringVar(&cfg.SelectionMode, "m", cfg.SelectionMode, "selection mode (replace|strict-toggle)")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")
	fs.IntVar(&cfg.Threshold, "k", cfg.Threshold, "re-encryption threshold")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
