package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/flagx"
	"github.com/dmitrijs2005/tgtoolkit/internal/timex"
)

// JsonConfig is the on-disk form of Config. Duration fields accept
// strings such as "90s" or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseType                string         `json:"database_type"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	EncryptionKey               string         `json:"encryption_key"`
	TelegramAPIID               int            `json:"telegram_api_id"`
	TelegramAPIHash             string         `json:"telegram_api_hash"`
	DataDir                     string         `json:"data_dir"`
	QRTimeout                   timex.Duration `json:"qr_timeout"`
	QRPollWait                  timex.Duration `json:"qr_poll_wait"`
	CloneFetchLimit             int            `json:"clone_fetch_limit"`
	ErrorLogSize                int            `json:"error_log_size"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	RedisAddr                   string         `json:"redis_addr"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c or -config.
// Keys missing from the file keep their current value. An unreadable or
// malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseType, c.DatabaseType)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setInt(&config.TelegramAPIID, c.TelegramAPIID)
	setString(&config.TelegramAPIHash, c.TelegramAPIHash)
	setString(&config.DataDir, c.DataDir)
	setDuration(&config.QRTimeout, c.QRTimeout)
	setDuration(&config.QRPollWait, c.QRPollWait)
	setInt(&config.CloneFetchLimit, c.CloneFetchLimit)
	setInt(&config.ErrorLogSize, c.ErrorLogSize)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = time.Duration(v.Duration)
	}
}
