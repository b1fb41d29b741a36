package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PRESHARE"

// parseEnv overlays PRESHARE_* variables. dotenv, when it exists, is loaded
// first without overriding variables already set in the process.
func parseEnv(cfg *Config, dotenv string) error {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for key, dst := range map[string]*string{
		"server_url":     &cfg.ServerURL,
		"gateway_addr":   &cfg.GatewayAddr,
		"database_path":  &cfg.DatabasePath,
		"download_dir":   &cfg.DownloadDir,
		"selection_mode": &cfg.SelectionMode,
		"log_level":      &cfg.LogLevel,
	} {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	if v.IsSet("request_timeout") {
		cfg.RequestTimeout = v.GetDuration("request_timeout")
	}
	if v.IsSet("threshold") {
		cfg.Threshold = v.GetInt("threshold")
	}
	return nil
}
