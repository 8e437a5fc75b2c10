// Package main initializes and starts the CortexVault server, setting up
// configuration, logging, the vault repository, services, handlers and TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/cortexvault/internal/config"
	"github.com/atinyakov/cortexvault/internal/db"
	"github.com/atinyakov/cortexvault/internal/logger"
	"github.com/atinyakov/cortexvault/internal/repository"
	"github.com/atinyakov/cortexvault/internal/server/handler/http"
	"github.com/atinyakov/cortexvault/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := openRepository(ctx, options, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init vault storage", zap.String("storage", options.Storage), zap.Error(err))
	}
	defer cleanup()

	vaultService := service.NewVaultService(repo)
	vaultHandler := http.NewVaultHandler(vaultService, zapLogger)
	router := http.NewRouter(vaultHandler, zapLogger, http.RouterOptions{
		RatePerSecond: options.RateLimit,
		Burst:         options.RateBurst,
		TrustProxy:    options.TrustProxy,
	})

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if options.TLSCert != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port), zap.String("storage", options.Storage))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Warn("starting plain HTTP server, use TLS outside development", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

// openRepository builds the configured vault repository and starts the
// soft-delete cleaner where the backend supports it.
func openRepository(ctx context.Context, options *config.Options, log *zap.Logger) (service.VaultRepository, func(), error) {
	switch options.Storage {
	case config.StorageS3:
		client, err := repository.NewS3Client(ctx, repository.S3Config{
			Bucket:   options.S3Bucket,
			Region:   options.S3Region,
			Endpoint: options.S3Endpoint,
			Key:      os.Getenv("AWS_ACCESS_KEY_ID"),
			Secret:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		})
		if err != nil {
			return nil, nil, err
		}
		return repository.NewS3VaultRepository(client, options.S3Bucket), func() {}, nil

	case config.StorageMemory:
		repo := repository.NewMemoryVaultRepository()
		db.StartSoftDeleteCleaner(ctx, repo, time.Hour, options.Retention, log)
		return repo, func() {}, nil

	default:
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		db.StartSoftDeleteCleaner(ctx, db.PostgresPurger{DB: postgresDB},
			time.Hour,         // interval
			options.Retention, // retention
			log,
		)
		return repository.NewPostgresVaultRepository(postgresDB), func() { _ = postgresDB.Close() }, nil
	}
}
