package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/api"
	"github.com/Michaelvilleneuve/windviz-go/internal/catalog"
	"github.com/Michaelvilleneuve/windviz-go/internal/config"
	"github.com/Michaelvilleneuve/windviz-go/internal/health"
	"github.com/Michaelvilleneuve/windviz-go/internal/server"
	"github.com/Michaelvilleneuve/windviz-go/internal/session"
	"github.com/Michaelvilleneuve/windviz-go/internal/store"
	"github.com/Michaelvilleneuve/windviz-go/internal/utils"
	"github.com/Michaelvilleneuve/windviz-go/internal/weather"
)

func main() {
	configPath := flag.String("config", os.Getenv("WINDVIZ_CONFIG"), "path to a YAML config file")
	flag.Parse()

	utils.LoadEnv()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		_ = os.Setenv("DEBUG", "true")
	}
	slog.SetDefault(utils.NewLogger(cfg.Debug))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("windviz stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	backend := api.New(cfg.APIBaseURL, cfg.HTTPTimeout)
	cat := loadCatalog(ctx, backend, cfg.CatalogFile)

	cache, err := store.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN)
	if err != nil {
		return err
	}
	defer cache.Close()
	if sqlCache, ok := cache.(*store.SQL); ok {
		if n, err := sqlCache.Purge(ctx); err != nil {
			slog.Warn("failed to purge expired cache entries", "error", err)
		} else {
			utils.Log("purged expired cache entries", "count", n)
		}
	}

	wx := weather.NewCached(
		weather.New(cfg.WeatherBaseURL, cfg.WeatherHeightM, cfg.HTTPTimeout),
		cache, cfg.Cache.TTL, cfg.WeatherHeightM,
	)

	var srv *server.Server
	sess := session.New(cat, backend, wx, session.Options{
		Resolution:     api.Resolution{NX: cfg.DefaultNX, NY: cfg.DefaultNY},
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		FrameInterval:  cfg.FrameInterval,
		Permalink:      cfg.Permalink,
		OnChange:       func(s session.Snapshot) { srv.PublishState(s) },
	})
	prober := health.NewProber(backend, cfg.HealthInterval, func(s health.Status) { srv.PublishHealth(s) })
	hub := server.NewHub(func() server.Message { return srv.StateMessage() })
	srv = server.New(sess, prober, hub)

	sessionDone := make(chan error, 1)
	go func() { sessionDone <- sess.Run(ctx) }()

	if err := prober.Start(ctx); err != nil {
		return err
	}
	defer prober.Stop()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("windviz started", "addr", cfg.ListenAddr, "backend", cfg.APIBaseURL, "datasets", cat.IDs())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-sessionDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadCatalog asks the backend for its datasets and falls back to the static
// catalog file when the backend cannot answer.
func loadCatalog(ctx context.Context, backend *api.Client, path string) catalog.Catalog {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	datasets, err := backend.FetchDatasets(fetchCtx)
	if err == nil {
		return catalog.New(datasets)
	}
	slog.Error("failed to fetch dataset catalog", "error", err)

	if path == "" {
		return catalog.New(nil)
	}
	cat, err := catalog.LoadFile(path)
	if err != nil {
		slog.Error("failed to load static catalog", "path", path, "error", err)
		return catalog.New(nil)
	}
	slog.Info("using static dataset catalog", "path", path, "datasets", cat.IDs())
	return cat
}
