package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-dashboard/internal/api/http"
	"github.com/i474232898/weather-dashboard/internal/offline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard through the offline caching proxy",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	origin, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return err
	}

	var storage offline.Storage
	if cfg.CacheDB != "" {
		db, err := offline.OpenSQLite(cfg.CacheDB)
		if err != nil {
			return err
		}
		defer db.Close()
		storage = db
	} else {
		storage = offline.NewMemoryStorage(cfg.CacheMaxEntries)
	}

	// Redirects go back to the browser untouched.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	fetcher := &offline.HTTPFetcher{Client: httpClient, Origin: origin}

	registry := offline.NewRegistry(offline.Config{
		Prefix:            cfg.CachePrefix,
		Origin:            origin,
		Precache:          cfg.PrecacheAssets,
		OfflinePage:       cfg.OfflinePage,
		NavigationTimeout: cfg.NavigationTimeout,
	}, storage, fetcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, _, err := registry.Register(ctx, httpapi.ScriptURL(cfg.AssetVersion)); err != nil {
		// The proxy still passes requests through; a later POST /__worker retries.
		log.Printf("ERROR: initial worker registration failed: %v", err)
	}

	app := httpapi.NewApp("weather-dashboard", true)
	httpapi.RegisterRoutes(app, registry, origin)

	go func() {
		log.Printf("INFO: proxying %s on :%s", cfg.BackendURL, cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	if w := registry.Active(); w != nil {
		w.Wait()
	}
	return nil
}
