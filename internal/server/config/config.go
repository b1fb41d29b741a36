package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Config holds runtime settings for the preshare server.
type Config struct {
	ListenAddr    string
	DatabaseDSN   string
	SecretKey     string
	TokenTTL      time.Duration
	S3Region      string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	StorageKey    string
	RedisAddr     string
	GatewayAddr   string
	GatewayListen string
	MaxUploadSize int64
	LogLevel      string
}

// LoadDefaults populates c with development defaults. The secret is not
// suitable for production.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8000"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.TokenTTL = 24 * time.Hour
	c.S3Region = "us-east-1"
	c.S3Endpoint = ""
	c.S3AccessKey = ""
	c.S3SecretKey = ""
	c.S3Bucket = ""
	c.StorageKey = ""
	c.RedisAddr = ""
	c.GatewayAddr = ""
	c.GatewayListen = "127.0.0.1:50051"
	c.MaxUploadSize = 32 << 20
	c.LogLevel = "info"
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.TokenTTL)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", c.MaxUploadSize)
	}
	if c.GatewayAddr == "" && c.GatewayListen == "" {
		return fmt.Errorf("either a gateway address or a gateway listen address is required")
	}
	if c.StorageKey != "" {
		if _, err := c.StorageKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// StorageKeyBytes decodes StorageKey. It returns nil when sealing is off.
func (c *Config) StorageKeyBytes() ([]byte, error) {
	if c.StorageKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("storage key is not hex: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("storage key must be 16, 24 or 32 bytes, got %d", len(key))
}

// Load builds a Config from defaults, the JSON file, the environment and
// args (without the program name), in that order.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, ".env"); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
