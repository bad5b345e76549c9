// Package chart renders hourly series into line and bar charts on a fixed
// 240x80 logical canvas and maps pointer positions back to samples.
package chart

import (
	"math"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

const (
	Width  = 240.0
	Height = 80.0

	// GuideCount horizontal guide lines are drawn behind every chart.
	GuideCount = 4

	barGap = 2.0
)

// Kind distinguishes line charts from bar charts.
type Kind string

const (
	KindLine Kind = "line"
	KindBar  Kind = "bar"
)

// Series is one named sequence of nullable values.
type Series struct {
	Name   string
	Class  string
	Values []*float64
}

type Point struct {
	X, Y float64
}

// Path is one continuous run of non-null values of a series.
type Path struct {
	Class  string
	Points []Point
}

type Guide struct {
	Y float64
}

type Bar struct {
	Index      int
	X, Y, W, H float64
}

type Label struct {
	Index int
	X     float64
	Text  string
}

// Chart is the full set of drawing primitives for one chart.
type Chart struct {
	Kind   Kind
	Width  float64
	Height float64
	Count  int
	Guides []Guide
	Paths  []Path
	Bars   []Bar
	Labels []Label
}

// Empty reports whether the chart has no data primitives.
func (c Chart) Empty() bool {
	return len(c.Paths) == 0 && len(c.Bars) == 0
}

func newChart(kind Kind, count int) Chart {
	c := Chart{Kind: kind, Width: Width, Height: Height, Count: count}
	for i := 1; i <= GuideCount; i++ {
		c.Guides = append(c.Guides, Guide{Y: Height * float64(i) / float64(GuideCount+1)})
	}
	return c
}

// LineChart draws every series into one shared value space. Nulls break the
// path of their series; nothing is interpolated across them.
func LineChart(labels []string, series ...Series) Chart {
	count := len(labels)
	for _, s := range series {
		if len(s.Values) > count {
			count = len(s.Values)
		}
	}
	c := newChart(KindLine, count)

	lo, hi, ok := bounds(series)
	if !ok {
		return c
	}
	if hi == lo {
		// Centre a flat series in a unit band so it sits at mid-height.
		lo -= 0.5
		hi += 0.5
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	for _, s := range series {
		var run []Point
		for i, v := range s.Values {
			if !finite(v) {
				if len(run) > 0 {
					c.Paths = append(c.Paths, Path{Class: s.Class, Points: run})
					run = nil
				}
				continue
			}
			run = append(run, Point{
				X: xAt(i, count),
				Y: Height - ((*v-lo)/span)*Height,
			})
		}
		if len(run) > 0 {
			c.Paths = append(c.Paths, Path{Class: s.Class, Points: run})
		}
	}

	c.Labels = placeLabels(labels, func(i int) float64 { return xAt(i, count) })
	return c
}

// BarChart draws percentages (0-100) as independent bars scaled to the
// canvas height.
func BarChart(labels []string, values []*float64) Chart {
	count := len(values)
	if len(labels) > count {
		count = len(labels)
	}
	c := newChart(KindBar, count)
	if count == 0 {
		return c
	}

	slot := Width / float64(count)
	w := math.Max(1, slot-barGap)
	for i, v := range values {
		if !finite(v) {
			continue
		}
		h := clamp(*v, 0, 100) / 100 * Height
		c.Bars = append(c.Bars, Bar{
			Index: i,
			X:     float64(i)*slot + (slot-w)/2,
			Y:     Height - h,
			W:     w,
			H:     h,
		})
	}

	c.Labels = placeLabels(labels, func(i int) float64 { return float64(i)*slot + slot/2 })
	return c
}

// TemperatureChart plots temperature and feels-like for one day.
func TemperatureChart(d weather.DailyDetail) Chart {
	temps := make([]*float64, len(d.Hours))
	feels := make([]*float64, len(d.Hours))
	for i, h := range d.Hours {
		temps[i] = h.Temperature
		feels[i] = h.FeelsLike
	}
	return LineChart(times(d.Hours),
		Series{Name: "Temperature", Class: "temp", Values: temps},
		Series{Name: "Feels like", Class: "feels", Values: feels},
	)
}

// PrecipChart plots the chance of precipitation for one day.
func PrecipChart(d weather.DailyDetail) Chart {
	vals := make([]*float64, len(d.Hours))
	for i, h := range d.Hours {
		vals[i] = h.PrecipChance
	}
	return BarChart(times(d.Hours), vals)
}

func times(hours []weather.HourSample) []string {
	out := make([]string, len(hours))
	for i, h := range hours {
		out[i] = h.Time
	}
	return out
}

func bounds(series []Series) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			if !finite(v) {
				continue
			}
			lo = math.Min(lo, *v)
			hi = math.Max(hi, *v)
			ok = true
		}
	}
	return lo, hi, ok
}

func xAt(i, count int) float64 {
	if count <= 1 {
		return Width / 2
	}
	return float64(i) * Width / float64(count-1)
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
