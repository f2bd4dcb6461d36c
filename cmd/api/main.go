package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/config"
	"github.com/zhouzirui/jarvik/webclient/internal/handler"
	"github.com/zhouzirui/jarvik/webclient/internal/model/catalog"
	"github.com/zhouzirui/jarvik/webclient/internal/model/session"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/internal/service/router"
	"github.com/zhouzirui/jarvik/webclient/pkg/logger"
)

// blobPrefix is where minted download references are served.
const blobPrefix = "/api/blobs/"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{}).Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(logger.Options{
		FilePath:   cfg.Log.FilePath,
		Production: cfg.Log.Production,
		Level:      cfg.Log.Level,
	})
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if envErr != nil {
		log.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}

	rr := router.New(router.Options{
		Origin:           cfg.Backend.BaseURL,
		DevlabConfigPath: cfg.Backend.DevlabConfigPath,
		AskRouting:       cfg.Backend.AskRouting,
		HTTPClient:       &http.Client{Timeout: cfg.Backend.Timeout},
		Store:            session.NewFileStore(cfg.Session.File),
		Blobs:            blob.NewStore(blobPrefix, cfg.Blob.TTL),
		Log:              log,
	})

	if cfg.Backend.DiscoverDevlab {
		rr.Discover(ctx)
	}
	log.Info("backend resolved",
		zap.String("origin", cfg.Backend.BaseURL),
		zap.String("target", rr.Environment().Label),
		zap.String("askRouting", cfg.Backend.AskRouting),
		zap.String("sessionFile", cfg.Session.File),
	)

	startServer(ctx, cfg.Server, handler.NewRouter(rr, catalog.Default(), log), log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("Jarvik companion server listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
