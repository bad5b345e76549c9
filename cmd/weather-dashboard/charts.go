package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-dashboard/internal/chart"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

var outDir string

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "Export the hourly charts of a location as SVG",
	RunE:  runCharts,
}

func init() {
	chartsCmd.Flags().StringVarP(&outDir, "out", "o", "charts", "Output directory")
}

func runCharts(cmd *cobra.Command, _ []string) error {
	coord, ok := deviceCoordinate(cmd)
	if !ok {
		return errors.New("--lat and --lon are required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, _, err := newClient(cfg)
	if err != nil {
		return err
	}

	extras, err := client.Extras(context.Background(), coord, "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	written := 0
	if len(extras.HourlyToday) > 0 {
		if err := writeSVG("today-temperature.svg", chart.TemperatureChart(weather.DailyDetail{Hours: extras.HourlyToday})); err != nil {
			return err
		}
		written++
	}
	for _, d := range extras.DailyDetails {
		if err := writeSVG(d.Key+"-temperature.svg", chart.TemperatureChart(d)); err != nil {
			return err
		}
		if err := writeSVG(d.Key+"-precip.svg", chart.PrecipChart(d)); err != nil {
			return err
		}
		written += 2
	}

	cmd.Println(fmt.Sprintf("Wrote %d charts to %s", written, outDir))
	return nil
}

func writeSVG(name string, c chart.Chart) error {
	f, err := os.Create(filepath.Join(outDir, filepath.Base(name)))
	if err != nil {
		return err
	}
	if err := c.WriteSVG(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
