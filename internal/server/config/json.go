package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/preshare/internal/flagx"
	"github.com/dmitrijs2005/preshare/internal/timex"
)

// JsonConfig is the on-disk shape. Durations accept "24h" or integer
// nanoseconds. Absent keys leave the current value.
type JsonConfig struct {
	ListenAddr    string         `json:"listen_addr"`
	DatabaseDSN   string         `json:"database_dsn"`
	SecretKey     string         `json:"secret_key"`
	TokenTTL      timex.Duration `json:"token_ttl"`
	S3Region      string         `json:"s3_region"`
	S3Endpoint    string         `json:"s3_endpoint"`
	S3AccessKey   string         `json:"s3_access_key"`
	S3SecretKey   string         `json:"s3_secret_key"`
	S3Bucket      string         `json:"s3_bucket"`
	StorageKey    string         `json:"storage_key"`
	RedisAddr     string         `json:"redis_addr"`
	GatewayAddr   string         `json:"gateway_addr"`
	GatewayListen string         `json:"gateway_listen"`
	MaxUploadSize int64          `json:"max_upload_size"`
	LogLevel      string         `json:"log_level"`
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

	for dst, v := range map[*string]string{
		&cfg.ListenAddr:    jc.ListenAddr,
		&cfg.DatabaseDSN:   jc.DatabaseDSN,
		&cfg.SecretKey:     jc.SecretKey,
		&cfg.S3Region:      jc.S3Region,
		&cfg.S3Endpoint:    jc.S3Endpoint,
		&cfg.S3AccessKey:   jc.S3AccessKey,
		&cfg.S3SecretKey:   jc.S3SecretKey,
		&cfg.S3Bucket:      jc.S3Bucket,
		&cfg.StorageKey:    jc.StorageKey,
		&cfg.RedisAddr:     jc.RedisAddr,
		&cfg.GatewayAddr:   jc.GatewayAddr,
		&cfg.GatewayListen: jc.GatewayListen,
		&cfg.LogLevel:      jc.LogLevel,
	} {
		if v != "" {
			*dst = v
		}
	}
	if jc.TokenTTL.Duration != 0 {
		cfg.TokenTTL = jc.TokenTTL.Duration
	}
	if jc.MaxUploadSize != 0 {
		cfg.MaxUploadSize = jc.MaxUploadSize
	}
	return nil
}
