package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/imagedex/internal/transport/chi"
	"github.com/kailas-cloud/imagedex/internal/version"
)

func runServe(ctx context.Context, env string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	a.logger.Info("Starting imagedex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index", cfg.Index.Name),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	server := chiTransport.NewServer(a.ingest, a.gallery, a.search, a.index, a.health,
		chiTransport.DebugSettings{
			IndexName:    cfg.Index.Name,
			Cloud:        cfg.Index.Cloud,
			Region:       cfg.Index.Region,
			APIKeyLength: len(cfg.Database.APIKey),
		},
		int64(cfg.HTTP.MaxUploadMB)<<20,
		a.logger,
	)
	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		APIKeys:      cfg.Auth.APIKeys,
		DataDir:      cfg.Storage.DataDir,
		PublicPrefix: cfg.Storage.PublicPrefix,
	}, a.logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	if err := a.ingest.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Indexing runs did not stop in time", zap.Error(err))
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}
