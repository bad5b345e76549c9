package main

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/config"
	"github.com/i474232898/weather-dashboard/internal/geoloc"
	"github.com/i474232898/weather-dashboard/internal/prefs"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

var (
	backendURL string
	lat, lon   float64
)

var rootCmd = &cobra.Command{
	Use:   "weather-dashboard",
	Short: "Weather dashboard client, offline proxy and chart exporter",
	Long: `weather-dashboard talks to a weather dashboard server. It can run the
dashboard in a terminal, serve the site through an offline-capable caching
proxy, or export the hourly charts of a location as SVG.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&backendURL, "backend", "b", "", "Dashboard server URL (overrides BACKEND_URL)")
	rootCmd.PersistentFlags().Float64Var(&lat, "lat", 0, "Latitude of this device")
	rootCmd.PersistentFlags().Float64Var(&lon, "lon", 0, "Longitude of this device")

	rootCmd.AddCommand(serveCmd, watchCmd, chartsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if backendURL != "" {
		cfg.BackendURL = backendURL
	}
	return cfg, nil
}

// deviceCoordinate is the --lat/--lon position, if both were given.
func deviceCoordinate(cmd *cobra.Command) (weather.Coordinate, bool) {
	flags := cmd.Flags()
	if !flags.Changed("lat") || !flags.Changed("lon") {
		return weather.Coordinate{}, false
	}
	c := weather.Coordinate{Lat: lat, Lon: lon}
	return c, c.InRange()
}

// newClient builds the backend client and a preference store sharing its
// cookie jar, so preference cookies travel with every request.
func newClient(cfg *config.AppConfig) (*backend.Client, *prefs.Store, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}
	client, err := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Client:  &http.Client{Timeout: cfg.HTTPTimeout, Jar: jar},
	})
	if err != nil {
		return nil, nil, err
	}
	return client, prefs.NewStore(prefs.NewHTTPJar(jar, client.BaseURL())), nil
}

func ladder(cfg *config.AppConfig) []geoloc.Options {
	return []geoloc.Options{
		{HighAccuracy: false, Timeout: cfg.GeoQuickTimeout, MaximumAge: cfg.GeoMaximumAge},
		{HighAccuracy: true, Timeout: cfg.GeoFreshTimeout},
	}
}
