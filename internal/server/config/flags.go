package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/preshare/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-k", "-r", "-w", "-x", "-m", "-l",
}

func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("preshare-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "PostgreSQL DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "token secret")
	fs.DurationVar(&cfg.TokenTTL, "t", cfg.TokenTTL, "token lifetime")
	fs.StringVar(&cfg.S3AccessKey, "u", cfg.S3AccessKey, "S3 access key")
	fs.StringVar(&cfg.S3SecretKey, "p", cfg.S3SecretKey, "S3 secret key")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Endpoint, "e", cfg.S3Endpoint, "S3 endpoint")
	fs.StringVar(&cfg.StorageKey, "k", cfg.StorageKey, "hex payload sealing key")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "Redis address")
	fs.StringVar(&cfg.GatewayAddr, "w", cfg.GatewayAddr, "external gateway address")
	fs.StringVar(&cfg.GatewayListen, "x", cfg.GatewayListen, "in-process gateway listen address")
	fs.Int64Var(&cfg.MaxUploadSize, "m", cfg.MaxUploadSize, "maximum upload size in bytes")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	return fs.Parse(args)
}
