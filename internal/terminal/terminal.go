// Package terminal draws dashboard view models as styled text.
package terminal

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/i474232898/weather-dashboard/internal/chart"
	"github.com/i474232898/weather-dashboard/internal/view"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(0, 1)

	severityStyles = map[string]lipgloss.Style{
		"extreme":  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5555")),
		"severe":   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")),
		"moderate": lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")),
	}
)

var blocks = []rune("▁▂▃▄▅▆▇█")

const progressWidth = 20

// Renderer writes one frame per view model.
type Renderer struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool
}

// New returns a Renderer writing to w. With clear set every frame first
// clears the screen.
func New(w io.Writer, clear bool) *Renderer {
	return &Renderer{w: w, clear: clear}
}

func (r *Renderer) Render(vm view.ViewModel) {
	frame := Format(vm)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clear {
		io.WriteString(r.w, "\033[H\033[2J")
	}
	io.WriteString(r.w, frame+"\n")
}

// Format lays out a whole frame.
func Format(vm view.ViewModel) string {
	var sections []string

	title := vm.Location
	if title == "" {
		title = "Weather"
	}
	sections = append(sections, titleStyle.Render(title)+" "+dimStyle.Render(vm.Clock))

	if vm.Status != "" {
		sections = append(sections, errorStyle.Render(vm.Status))
	}
	if vm.Prompt != nil {
		sections = append(sections, formatPrompt(*vm.Prompt))
	}
	if vm.State == view.UIWeatherShown {
		sections = append(sections, formatCurrent(vm))
		if line := Sparkline(vm.Hourly, "temp"); line != "" {
			sections = append(sections, subtitleStyle.Render("Today")+" "+line)
		}
		if vm.HourlyError != "" {
			sections = append(sections, dimStyle.Render(vm.HourlyError))
		}
		if len(vm.Days) > 0 {
			sections = append(sections, formatDays(vm.Days))
		}
		sections = append(sections, formatAlerts(vm))
	}
	if len(vm.SavedLocations) > 0 {
		var names []string
		for _, l := range vm.SavedLocations {
			names = append(names, l.Label)
		}
		sections = append(sections, subtitleStyle.Render("Recent")+" "+strings.Join(names, dimStyle.Render(" | ")))
	}
	if m := formatModal(vm.Modal); m != "" {
		sections = append(sections, m)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func formatPrompt(p view.PromptView) string {
	switch {
	case p.Detecting:
		return infoStyle.Render("Detecting your location...")
	case p.Message != "":
		msg := errorStyle.Render(p.Message)
		if p.CanRetry {
			msg += dimStyle.Render(" (retry available)")
		}
		return msg
	case !p.Supported:
		return infoStyle.Render("Search for a place to see its forecast.")
	}
	return infoStyle.Render("Use your current location or search for a place.")
}

func formatCurrent(vm view.ViewModel) string {
	c := vm.Current
	lines := []string{
		statStyle.Render(c.Temperature) + dimStyle.Render("  feels like ") + c.FeelsLike,
		dimStyle.Render("Humidity ") + c.Humidity + dimStyle.Render("  Precip ") + c.PrecipChance,
	}
	if c.ObservationAgo != "" {
		obs := "Observed " + c.ObservationAgo
		if c.Station != "" {
			obs += " at " + c.Station
		}
		lines = append(lines, dimStyle.Render(obs))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func formatDays(days []view.DayView) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		if d.Selected {
			parts = append(parts, statStyle.Render("["+d.Label+"]"))
			continue
		}
		parts = append(parts, d.Label)
	}
	return strings.Join(parts, "  ")
}

func formatAlerts(vm view.ViewModel) string {
	header := subtitleStyle.Render(fmt.Sprintf("Alerts within %d mi", vm.AlertRadius))
	if len(vm.Alerts) == 0 {
		return header + " " + dimStyle.Render("none")
	}
	lines := []string{header}
	for _, a := range vm.Alerts {
		style, ok := severityStyles[strings.ToLower(a.Severity)]
		if !ok {
			style = infoStyle
		}
		line := style.Render(a.Title)
		if a.Window != "" {
			line += " " + dimStyle.Render(a.Window) + " " + ProgressBar(a.Progress, progressWidth) + " " + a.ProgressLabel
		}
		lines = append(lines, line)
		if len(a.Areas) > 0 {
			lines = append(lines, dimStyle.Render("  "+strings.Join(a.Areas, ", ")))
		}
	}
	return strings.Join(lines, "\n")
}

func formatModal(m view.ModalView) string {
	var body string
	switch m.Kind {
	case view.ModalDay:
		if m.Day == nil {
			return ""
		}
		if m.Day.Pending {
			body = subtitleStyle.Render(m.Day.Label) + "\n" + dimStyle.Render("Loading hourly details...")
			break
		}
		body = strings.Join([]string{
			subtitleStyle.Render(m.Day.Label),
			"Temp   " + Sparkline(m.Day.Temperature, "temp"),
			"Precip " + Sparkline(m.Day.Precip, ""),
		}, "\n")
		for _, h := range []chart.Hover{m.Day.TempHover, m.Day.PrecipHover} {
			if h.Visible {
				body += "\n" + infoStyle.Render(h.Text)
			}
		}
	case view.ModalSwitch:
		if m.Switch == nil {
			return ""
		}
		body = fmt.Sprintf("You seem to be somewhere else (%.4f, %.4f). Switch location?", m.Switch.To.Lat, m.Switch.To.Lon)
	case view.ModalRefresh:
		if m.Refresh == nil {
			return ""
		}
		body = "Refresh the forecast for " + m.Refresh.Label + "?"
	case view.ModalSearch:
		body = "Search for a city, address or ZIP code."
	default:
		return ""
	}
	if m.Busy {
		body += "\n" + dimStyle.Render("Working...")
	}
	return boxStyle.Render(body)
}

// Sparkline renders a chart as one block character per sample. Paths are
// filtered by class when class is set; bars are always drawn. Missing samples
// are blank.
func Sparkline(c chart.Chart, class string) string {
	if c.Count == 0 || c.Empty() || c.Height <= 0 {
		return ""
	}
	cells := []rune(strings.Repeat(" ", c.Count))
	level := func(y float64) rune {
		frac := 1 - y/c.Height
		i := int(math.Round(frac * float64(len(blocks)-1)))
		return blocks[max(0, min(len(blocks)-1, i))]
	}
	for _, p := range c.Paths {
		if class != "" && p.Class != class {
			continue
		}
		for _, pt := range p.Points {
			i := 0
			if c.Count > 1 {
				i = int(math.Round(pt.X / (c.Width / float64(c.Count-1))))
			}
			if i >= 0 && i < c.Count {
				cells[i] = level(pt.Y)
			}
		}
	}
	for _, b := range c.Bars {
		if b.Index >= 0 && b.Index < c.Count {
			cells[b.Index] = level(b.Y)
		}
	}
	return string(cells)
}

// ProgressBar draws p in [0, 1] as a bar of width cells.
func ProgressBar(p float64, width int) string {
	filled := int(math.Round(math.Max(0, math.Min(1, p)) * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
