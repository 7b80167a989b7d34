// Package server wires configuration, storage backends, the file service and
// both transports, and runs them until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/access"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/keys"
	"github.com/dmitrijs2005/filevault/internal/server/objectstore"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/rest"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/filevault/internal/server/grpc"
)

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newS3Store = func(ctx context.Context, cfg objectstore.S3Config) (s3Store, error) {
		return objectstore.NewS3Store(ctx, cfg)
	}
)

type s3Store interface {
	objectstore.Store
	EnsureBucket(ctx context.Context) error
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	files     *services.FileService
	reclaimer *services.Reclaimer
	verifier  auth.Verifier
	checks    map[string]rest.Checker
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	app := &App{config: c, logger: logger, checks: make(map[string]rest.Checker)}

	var (
		rm  repomanager.RepositoryManager
		tx  dbx.Transactor
		dbh dbx.DBTX
	)

	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, using in-memory catalog")
		rm = repomanager.NewMemoryRepositoryManager()
		tx = dbx.NoopTransactor{}
	} else {
		db, err := openDB(c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db ping error: %w", err)
		}

		rm = repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}

		app.db = db
		dbh = db
		tx = dbx.NewTransactor(db)
		app.checks["catalog"] = rest.PingFunc(db.PingContext)
	}

	store, err := app.initStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.checks["objects"] = store

	hasher, err := keys.NewHasher([]byte(c.KeyPepper))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("key hasher: %w", err)
	}
	masterKey := cryptox.DeriveMasterKey([]byte(c.MasterKeySecret), []byte(c.MasterKeySalt))

	gate := access.NewGate(rm.Files(dbh), hasher, access.Options{
		MaxFailedAttempts:   c.MaxFailedAttempts,
		FailedAttemptWindow: c.FailedAttemptWindow,
	}, logger)

	app.reclaimer = services.NewReclaimer(tx, rm, store, c.ReclaimInterval, logger)
	app.files = services.NewFileService(dbh, rm, store, gate, hasher, masterKey, app.reclaimer, c, logger)

	if c.JWKSURL != "" {
		v, err := auth.NewJWKSVerifier(c.JWKSURL, c.JWKSRefreshInterval, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("jwks init error: %w", err)
		}
		app.verifier = v
	} else {
		app.verifier = auth.NewHMACVerifier([]byte(c.SecretKey))
	}

	return app, nil
}

func (app *App) initStore(ctx context.Context) (objectstore.Store, error) {
	c := app.config

	if c.StorageBackend == config.StorageMemory {
		app.logger.Warn(ctx, "using in-memory object store, files are lost on restart")
		return objectstore.WithTimeout(objectstore.NewMemoryStore(), c.ObjectStoreTimeout), nil
	}

	s, err := newS3Store(ctx, objectstore.S3Config{
		Region:       c.S3Region,
		Endpoint:     c.S3BaseEndpoint,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		Bucket:       c.S3Bucket,
		UsePathStyle: c.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 init error: %w", err)
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("s3 bucket error: %w", err)
	}
	return objectstore.WithTimeout(s, c.ObjectStoreTimeout), nil
}

// Close releases the database handle.
func (app *App) Close() {
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := rest.NewRouter(
		rest.NewFileHandler(app.files, app.config.MaxUploadSize, app.logger),
		rest.NewHealthHandler(app.checks),
		app.verifier,
		app.logger,
	)

	s := rest.NewHTTPServer(app.config.EndpointAddrHTTP, router, app.config.ShutdownTimeout, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.files, app.verifier)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves HTTP and gRPC until ctx is done, a signal arrives or a server
// fails, then stops the reclaimer and closes the database.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.reclaimer.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.reclaimer.Stop()
	app.Close()

	app.logger.Info(context.Background(), "App stopped")
}
