package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	// BackendURL is the origin of the weather dashboard server.
	BackendURL string `validate:"required,url"`
	Port       string `validate:"required,numeric"`

	// AssetVersion tags the offline caches; bump it to evict old ones.
	AssetVersion string `validate:"required"`
	CachePrefix  string `validate:"required,alphanum"`

	// CacheDB is a SQLite path for persistent caches. Empty keeps them in memory.
	CacheDB         string
	CacheMaxEntries int `validate:"gte=0"`
	PrecacheAssets  []string
	OfflinePage     string `validate:"required,startswith=/"`

	NavigationTimeout time.Duration `validate:"gt=0"`
	HTTPTimeout       time.Duration `validate:"gt=0"`
	AutoRefresh       time.Duration `validate:"gt=0"`
	ClockInterval     time.Duration `validate:"gt=0"`

	GeoQuickTimeout time.Duration `validate:"gt=0"`
	GeoFreshTimeout time.Duration `validate:"gt=0"`
	GeoMaximumAge   time.Duration `validate:"gte=0"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.BackendURL = strings.TrimRight(getenvDefault("BACKEND_URL", "http://localhost:5000"), "/")
	cfg.Port = getenvDefault("PORT", "8080")
	cfg.AssetVersion = getenvDefault("ASSET_VERSION", "dev")
	cfg.CachePrefix = getenvDefault("CACHE_PREFIX", "weather")
	cfg.CacheDB = os.Getenv("CACHE_DB")
	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 500)
	cfg.PrecacheAssets = getenvList("PRECACHE_ASSETS", []string{"/", "/static/app.css", "/static/app.js", "/offline.html"})
	cfg.OfflinePage = getenvDefault("OFFLINE_PAGE", "/offline.html")

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"NAVIGATION_TIMEOUT", "3s", &cfg.NavigationTimeout},
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"AUTO_REFRESH", "5m", &cfg.AutoRefresh},
		{"CLOCK_INTERVAL", "30s", &cfg.ClockInterval},
		{"GEO_QUICK_TIMEOUT", "8s", &cfg.GeoQuickTimeout},
		{"GEO_FRESH_TIMEOUT", "20s", &cfg.GeoFreshTimeout},
		{"GEO_MAXIMUM_AGE", "10m", &cfg.GeoMaximumAge},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
