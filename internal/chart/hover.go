package chart

import (
	"math"
	"sync"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// tooltipMargin keeps the tooltip this far from the container edges.
const tooltipMargin = 8.0

// Box is the horizontal extent of a chart's containing box, in the same
// coordinate space as pointer events.
type Box struct {
	Left  float64
	Width float64
}

// Hover is the rendered state of the hover marker and tooltip.
type Hover struct {
	Visible  bool
	Index    int
	MarkerX  float64
	TooltipX float64
	Text     string
}

// HoverIndex maps a pointer x position over box to a sample index.
func HoverIndex(pointerX float64, box Box, count int) int {
	if count <= 0 {
		return 0
	}
	ratio := 0.0
	if box.Width > 1 {
		ratio = clamp(pointerX-box.Left, 0, box.Width) / box.Width
	}
	idx := int(math.Round(ratio * float64(count-1)))
	if idx < 0 {
		return 0
	}
	if idx > count-1 {
		return count - 1
	}
	return idx
}

// TooltipX centres a tooltip of the given width on offset while keeping it
// inside a container of containerWidth.
func TooltipX(offset, tooltipWidth, containerWidth float64) float64 {
	half := tooltipWidth / 2
	lo := half + tooltipMargin
	hi := containerWidth - half - tooltipMargin
	if hi < lo {
		return containerWidth / 2
	}
	return clamp(offset, lo, hi)
}

// Controller tracks hover state for one chart. The same controller serves
// temperature and precipitation charts; only the formatter differs.
type Controller struct {
	mu      sync.Mutex
	samples []weather.HourSample
	format  TooltipFormatter
	state   Hover
}

func NewController(samples []weather.HourSample, format TooltipFormatter) *Controller {
	return &Controller{samples: samples, format: format}
}

// Move handles a pointer or touch position over the chart box.
func (c *Controller) Move(pointerX float64, box Box, tooltipWidth float64) Hover {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) == 0 {
		c.state = Hover{}
		return c.state
	}

	idx := HoverIndex(pointerX, box, len(c.samples))
	offset := clamp(pointerX-box.Left, 0, math.Max(box.Width, 0))
	c.state = Hover{
		Visible:  true,
		Index:    idx,
		MarkerX:  offset,
		TooltipX: TooltipX(offset, tooltipWidth, box.Width),
		Text:     c.format(c.samples[idx]),
	}
	return c.state
}

// Leave hides both marker and tooltip.
func (c *Controller) Leave() Hover {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Hover{}
	return c.state
}

func (c *Controller) State() Hover {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
