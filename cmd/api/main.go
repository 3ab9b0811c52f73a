package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"example.com/activitysync/internal/api"
	"example.com/activitysync/internal/bootstrap"
	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/persistence"
	httptransport "example.com/activitysync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("open storage", "medium", cfg.StorageMedium, "error", err)
	}
	defer storage.Close()

	store := storage.Orchestrator(cfg, log)
	defer store.Close()

	store.Events().SubscribeAll(func(name events.Name, ev events.Event) {
		log.Debug("activity event", "event", name, "activity_id", ev.ActivityID, "origin", ev.Origin)
	})

	handler := api.NewHandler(store, log)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLog(log, mux))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("activitysync api listening", "address", cfg.HTTPAddress, "medium", cfg.StorageMedium)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	if cfg.GCInterval > 0 {
		g.Go(func() error {
			runGC(gctx, store, cfg.GCInterval, cfg.GCMaxAge, log)
			return nil
		})
	}
	if storage.Feed != nil {
		g.Go(func() error {
			err := storage.Feed.Start(gctx, func(c events.Change) {
				log.Info("external change", "key", c.Key, "op", c.Op, "source", c.Source)
			})
			if err != nil {
				return fmt.Errorf("change feed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("activitysync api stopped", "error", err)
	}
	store.Flush()
}

func runGC(ctx context.Context, store *persistence.Orchestrator, interval, maxAge time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := store.CollectGarbage(ctx, maxAge)
			if len(result.Removed) > 0 {
				log.Info("garbage collection", "removed", len(result.Removed))
			}
			stats := store.Stats(ctx)
			log.Debug("storage usage", "bytes", stats.BytesUsed, "percent", stats.PercentUsed)
		}
	}
}
