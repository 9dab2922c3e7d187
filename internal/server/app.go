// Package server wires configuration, storage, Telegram sessions and the
// domain services together and runs the gRPC control API until a signal
// or context cancellation triggers a graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/tgtoolkit/internal/archive"
	"github.com/dmitrijs2005/tgtoolkit/internal/authflow"
	"github.com/dmitrijs2005/tgtoolkit/internal/clone"
	"github.com/dmitrijs2005/tgtoolkit/internal/cryptox"
	"github.com/dmitrijs2005/tgtoolkit/internal/dbx"
	"github.com/dmitrijs2005/tgtoolkit/internal/filex"
	"github.com/dmitrijs2005/tgtoolkit/internal/keyring"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/messages"
	"github.com/dmitrijs2005/tgtoolkit/internal/repositories/repomanager"
	"github.com/dmitrijs2005/tgtoolkit/internal/server/config"
	"github.com/dmitrijs2005/tgtoolkit/internal/sessions"
	"github.com/dmitrijs2005/tgtoolkit/internal/storage"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport"
	"github.com/dmitrijs2005/tgtoolkit/internal/transport/gotd"

	gs "github.com/dmitrijs2005/tgtoolkit/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	redis    *redis.Client
	sessions *sessions.Registry
	phone    *authflow.PhoneFlow
	qr       *authflow.QRFlow
	grpc     *gs.GRPCServer
}

// newDialer is a seam so tests can run the app without Telegram.
var newDialer = func(c *config.Config, l logging.Logger) transport.Dialer {
	return gotd.NewDialer(c.TelegramAPIID, c.TelegramAPIHash, l)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	if c.DatabaseType == dbx.SQLite || c.DatabaseType == "" {
		if _, err := filex.EnsureDir(filepath.Dir(c.DatabaseDSN)); err != nil {
			return nil, fmt.Errorf("db dir: %w", err)
		}
	}

	db, err := dbx.Open(ctx, c.DatabaseType, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(ctx, c, logger, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB) (*App, error) {
	repos, err := repomanager.New(c.DatabaseType)
	if err != nil {
		return nil, err
	}
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	vault, err := cryptox.NewVault(c.EncryptionKey, c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	app := &App{config: c, logger: logger.With("module", "app"), db: db}

	app.sessions = sessions.NewRegistry(db, repos, vault, newDialer(c, logger),
		sessions.Options{APIID: c.TelegramAPIID, APIHash: c.TelegramAPIHash}, logger)

	keys := keyring.NewRegistry()
	importer := authflow.NewImporter(app.sessions, logger)
	app.phone = authflow.NewPhoneFlow(app.sessions, logger)
	app.qr = authflow.NewQRFlow(app.sessions, importer, c.QRTimeout, c.QRPollWait, logger)

	var sink clone.ProgressSink
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.logger.Warn(ctx, "redis unreachable, progress mirror may lag", "addr", c.RedisAddr, "err", err)
		}
		sink = clone.NewRedisSink(app.redis)
	}

	tmp, err := filex.EnsureDir(filepath.Join(c.DataDir, "tmp"))
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	engine := clone.NewEngine(app.sessions, keys, sink, clone.Options{
		FetchLimit:   c.CloneFetchLimit,
		ErrorLogSize: c.ErrorLogSize,
		TempDir:      tmp,
	}, logger)

	var uploader archive.Uploader
	if c.S3Enabled() {
		uploader = storage.NewS3Store(storage.Config{
			Region:       c.S3Region,
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	}
	exporter := archive.NewExporter(app.sessions, keys, uploader, c.DataDir, logger)

	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Services{
		Sessions: app.sessions,
		Phone:    app.phone,
		QR:       app.qr,
		Importer: importer,
		Messages: messages.NewService(app.sessions, keys, logger),
		Clone:    engine,
		Exporter: exporter,
		Keys:     keys,
	}, c.SecretKey)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) func() {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancelFunc()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// releases every Telegram connection and closes storage.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	stop := app.initSignalHandler(cancelFunc)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.shutdown(context.WithoutCancel(ctx))
}

func (app *App) shutdown(ctx context.Context) {
	app.logger.Info(ctx, "Shutting down...")

	app.qr.Close(ctx)
	app.phone.Close(ctx)
	app.sessions.DisconnectAll(ctx)

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close", "err", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close", "err", err)
	}
}
