package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"chain-keeper/internal/api"
	"chain-keeper/internal/config"
	"chain-keeper/internal/db"
	"chain-keeper/internal/logger"
	"chain-keeper/pkg/library"
	"chain-keeper/pkg/loader"
	"chain-keeper/pkg/preset"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHAIN_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The library is optional; without a database the server still loads,
	// migrates and checksums documents.
	var store library.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			lg.Fatal("connect", "error", err)
		}
		defer pool.Close()

		pg := library.NewPgStore(pool)
		if err := pg.EnsureTable(ctx); err != nil {
			lg.Fatal("ensure chains table", "error", err)
		}
		store = library.NewBus(pg)
	} else {
		lg.Info("DATABASE_URL not set, chain library disabled")
	}

	ld := loader.New(nil, lg.With("component", "loader"))
	presets, err := preset.LoadBundled(ld, cfg.PresetWorkers)
	if err != nil {
		lg.Fatal("load presets", "error", err)
	}
	for _, f := range presets.Failures() {
		lg.Warn("preset excluded", "name", f.Name, "file", f.File, "error", f.Err)
	}
	lg.Info("presets loaded", "count", presets.Len(), "excluded", len(presets.Failures()))

	server := api.New(api.Options{
		Loader:      ld,
		Presets:     presets,
		Library:     store,
		Log:         lg.With("component", "api"),
		AppVersion:  cfg.AppVersion,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("chain-keeper listening", "addr", srv.Addr, "version", cfg.AppVersion, "schema", ld.Engine().Current())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		lg.Fatal("listen", "error", err)
	}
	lg.Info("shutdown complete")
}
