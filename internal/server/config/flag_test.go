package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-t", "postgres", "-d", "db", "-s", "secret", "-k", "vault-key",
			"-i", "12345", "-x", "hash", "-data", "/var/lib/tg", "-m", "90", "-r", "localhost:6379",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint", "-l", "debug",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddrGRPC:            "127.0.0.1:9090",
				DatabaseType:                "postgres",
				DatabaseDSN:                 "db",
				SecretKey:                   "secret",
				EncryptionKey:               "vault-key",
				TelegramAPIID:               12345,
				TelegramAPIHash:             "hash",
				DataDir:                     "/var/lib/tg",
				AccessTokenValidityDuration: 90 * time.Minute,
				RedisAddr:                   "localhost:6379",
				S3RootUser:                  "user",
				S3RootPassword:              "password",
				S3Bucket:                    "bucket",
				S3Region:                    "us-west-1",
				S3BaseEndpoint:              "http://endpoint",
				LogLevel:                    "debug",
			}},
		{name: "ignores foreign flags", args: []string{"cmd", "-c", "cfg.json", "-a", ":7000"},
			expected: &Config{EndpointAddrGRPC: ":7000"}},
		{name: "bad api id", args: []string{"cmd", "-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
