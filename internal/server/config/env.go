package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PRESHARE_SERVER"

// parseEnv overlays PRESHARE_SERVER_* variables. dotenv, when it exists, is
// loaded first without overriding variables already set in the process.
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
		"listen_addr":    &cfg.ListenAddr,
		"database_dsn":   &cfg.DatabaseDSN,
		"secret_key":     &cfg.SecretKey,
		"s3_region":      &cfg.S3Region,
		"s3_endpoint":    &cfg.S3Endpoint,
		"s3_access_key":  &cfg.S3AccessKey,
		"s3_secret_key":  &cfg.S3SecretKey,
		"s3_bucket":      &cfg.S3Bucket,
		"storage_key":    &cfg.StorageKey,
		"redis_addr":     &cfg.RedisAddr,
		"gateway_addr":   &cfg.GatewayAddr,
		"gateway_listen": &cfg.GatewayListen,
		"log_level":      &cfg.LogLevel,
	} {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	if v.IsSet("token_ttl") {
		cfg.TokenTTL = v.GetDuration("token_ttl")
	}
	if v.IsSet("max_upload_size") {
		cfg.MaxUploadSize = v.GetInt64("max_upload_size")
	}
	return nil
}
