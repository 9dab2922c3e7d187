// Package config handles configuration for the server component,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"path/filepath"
	"time"
)

// Config holds runtime settings for the toolkit server.
//
// Fields:
//   - EndpointAddrGRPC: bind address for the control API.
//   - DatabaseType / DatabaseDSN: "sqlite" (file path) or "postgres" (pgx DSN).
//   - SecretKey: JWT HMAC secret; also derives the vault key when
//     EncryptionKey is empty. Do not use the default in prod.
//   - EncryptionKey: explicit vault key for stored sessions.
//   - TelegramAPIID / TelegramAPIHash: default Telegram application.
//   - DataDir: root for exports and temporary files.
//   - RedisAddr: optional clone progress mirror.
//   - S3*: optional object storage for sealed exports; empty bucket disables it.
type Config struct {
	EndpointAddrGRPC            string
	DatabaseType                string
	DatabaseDSN                 string
	SecretKey                   string
	EncryptionKey               string
	TelegramAPIID               int
	TelegramAPIHash             string
	DataDir                     string
	QRTimeout                   time.Duration
	QRPollWait                  time.Duration
	CloneFetchLimit             int
	ErrorLogSize                int
	AccessTokenValidityDuration time.Duration
	RedisAddr                   string
	S3RootUser                  string
	S3RootPassword              string
	S3Bucket                    string
	S3Region                    string
	S3BaseEndpoint              string
	LogLevel                    string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secret key must be overridden outside development.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseType = "sqlite"
	c.DatabaseDSN = filepath.Join("data", "telegram_toolkit.db")
	c.SecretKey = "change-me-in-production"
	c.DataDir = "data"
	c.QRTimeout = 120 * time.Second
	c.QRPollWait = 3 * time.Second
	c.CloneFetchLimit = 10000
	c.ErrorLogSize = 100
	c.AccessTokenValidityDuration = 24 * time.Hour
	c.S3Region = "us-east-1"
	c.LogLevel = "info"
}

// S3Enabled reports whether sealed exports can be uploaded.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
