package chart

import (
	"math"
	"strings"

	"github.com/i474232898/weather-dashboard/internal/display"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// labelTarget is the approximate number of time-axis labels per chart.
const labelTarget = 5

// AxisIndexes picks which samples get a time-axis label: every stride-th
// sample plus the final one.
func AxisIndexes(count int) []int {
	if count <= 0 {
		return nil
	}
	stride := int(math.Round(float64(count) / labelTarget))
	if stride < 1 {
		stride = 1
	}
	var idx []int
	for i := 0; i < count; i += stride {
		idx = append(idx, i)
	}
	if idx[len(idx)-1] != count-1 {
		idx = append(idx, count-1)
	}
	return idx
}

func placeLabels(labels []string, x func(int) float64) []Label {
	var out []Label
	for _, i := range AxisIndexes(len(labels)) {
		out = append(out, Label{Index: i, X: x(i), Text: labels[i]})
	}
	return out
}

// TooltipFormatter renders the tooltip text of one sample.
type TooltipFormatter func(weather.HourSample) string

// TemperatureTooltip shows time, temperature and feels-like.
func TemperatureTooltip(s weather.HourSample) string {
	parts := []string{
		s.Time,
		display.Temperature(s.Temperature, s.TemperatureUnit),
		"feels " + display.Temperature(s.FeelsLike, s.TemperatureUnit),
	}
	return strings.Join(parts, " · ")
}

// PrecipTooltip shows time and chance of precipitation.
func PrecipTooltip(s weather.HourSample) string {
	return s.Time + " · " + display.Percent(s.PrecipChance)
}
