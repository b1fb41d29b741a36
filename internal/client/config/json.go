package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/preshare/internal/flagx"
	"github.com/dmitrijs2005/preshare/internal/timex"
)

// JsonConfig is the on-disk shape. Absent keys leave the current value.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	GatewayAddr    string         `json:"gateway_addr"`
	DatabasePath   string         `json:"database_path"`
	DownloadDir    string         `json:"download_dir"`
	SelectionMode  string         `json:"selection_mode"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	Threshold      int            `json:"threshold"`
	LogLevel       string         `json:"log_level"`
}

func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.ServerURL, jc.ServerURL)
	setString(&cfg.GatewayAddr, jc.GatewayAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.DownloadDir, jc.DownloadDir)
	setString(&cfg.SelectionMode, jc.SelectionMode)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.Threshold != 0 {
		cfg.Threshold = jc.Threshold
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
