package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

func TestHoverIndex(t *testing.T) {
	box := Box{Left: 0, Width: 100}
	assert.Equal(t, 9, HoverIndex(95, box, 10))
	assert.Equal(t, 0, HoverIndex(0, box, 10))
	assert.Equal(t, 5, HoverIndex(50, box, 10))
	assert.Equal(t, 0, HoverIndex(-40, box, 10))
	assert.Equal(t, 9, HoverIndex(400, box, 10))
}

func TestHoverIndexOffsetBox(t *testing.T) {
	box := Box{Left: 200, Width: 100}
	assert.Equal(t, 0, HoverIndex(200, box, 10))
	assert.Equal(t, 9, HoverIndex(300, box, 10))
}

func TestHoverIndexDegenerateBox(t *testing.T) {
	assert.Equal(t, 0, HoverIndex(50, Box{Width: 1}, 10))
	assert.Equal(t, 0, HoverIndex(50, Box{Width: 100}, 0))
}

func TestTooltipXClamp(t *testing.T) {
	// Half-width 20 plus 8 margin keeps the tooltip within [28, 72].
	assert.Equal(t, 28.0, TooltipX(0, 40, 100))
	assert.Equal(t, 72.0, TooltipX(100, 40, 100))
	assert.Equal(t, 50.0, TooltipX(50, 40, 100))
	assert.Equal(t, 15.0, TooltipX(3, 200, 30))
}

func TestControllerMoveAndLeave(t *testing.T) {
	samples := make([]weather.HourSample, 10)
	for i := range samples {
		samples[i] = weather.HourSample{Time: string(rune('a' + i))}
	}
	c := NewController(samples, PrecipTooltip)

	h := c.Move(95, Box{Width: 100}, 40)
	assert.True(t, h.Visible)
	assert.Equal(t, 9, h.Index)
	// Marker follows the pointer; tooltip is clamped.
	assert.Equal(t, 95.0, h.MarkerX)
	assert.Equal(t, 72.0, h.TooltipX)
	assert.Equal(t, "j · --", h.Text)

	h = c.Move(150, Box{Width: 100}, 40)
	assert.Equal(t, 100.0, h.MarkerX)

	h = c.Leave()
	assert.False(t, h.Visible)
	assert.Equal(t, Hover{}, c.State())
}

func TestControllerWithoutSamples(t *testing.T) {
	c := NewController(nil, TemperatureTooltip)
	assert.False(t, c.Move(10, Box{Width: 100}, 40).Visible)
}
