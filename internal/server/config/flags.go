package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tgtoolkit/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-t string   database type ("sqlite" or "postgres")
//	-d string   database DSN or sqlite path
//	-s string   JWT HMAC secret key
//	-k string   session vault key
//	-i int      Telegram API id
//	-x string   Telegram API hash
//	-data string  data directory for exports
//	-m int      access token validity, minutes
//	-r string   Redis address for clone progress
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-l string   log level
//
// os.Args is filtered to the flags listed here with flagx.FilterArgs so the
// JSON -c flag does not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-t", "-d", "-s", "-k", "-i", "-x", "-data", "-m", "-r", "-u", "-p", "-b", "-g", "-e", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseType, "t", config.DatabaseType, "database type (sqlite|postgres)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "session encryption key")
	fs.IntVar(&config.TelegramAPIID, "i", config.TelegramAPIID, "telegram api id")
	fs.StringVar(&config.TelegramAPIHash, "x", config.TelegramAPIHash, "telegram api hash")
	fs.StringVar(&config.DataDir, "data", config.DataDir, "data directory")

	accessTokenValidityDuration := fs.Int("m", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
