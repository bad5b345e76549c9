package chart

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SVG returns the chart as a standalone SVG document.
func (c Chart) SVG() string {
	var b strings.Builder
	_ = c.WriteSVG(&b)
	return b.String()
}

// WriteSVG writes the chart as SVG. The viewBox is the logical canvas and the
// aspect ratio is not preserved, so the chart stretches to its container.
func (c Chart) WriteSVG(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %s %s" preserveAspectRatio="none" class="chart chart-%s">`,
		num(c.Width), num(c.Height), c.Kind)
	for _, g := range c.Guides {
		fmt.Fprintf(&b, `<line class="chart-guide" x1="0" y1="%s" x2="%s" y2="%s"/>`, num(g.Y), num(c.Width), num(g.Y))
	}
	for _, p := range c.Paths {
		if len(p.Points) == 1 {
			fmt.Fprintf(&b, `<circle class="chart-point %s" cx="%s" cy="%s" r="1.5"/>`,
				p.Class, num(p.Points[0].X), num(p.Points[0].Y))
			continue
		}
		fmt.Fprintf(&b, `<path class="chart-line %s" fill="none" d="%s"/>`, p.Class, pathData(p.Points))
	}
	for _, r := range c.Bars {
		fmt.Fprintf(&b, `<rect class="chart-bar" data-index="%d" x="%s" y="%s" width="%s" height="%s"/>`,
			r.Index, num(r.X), num(r.Y), num(r.W), num(r.H))
	}
	b.WriteString(`</svg>`)
	_, err := io.WriteString(w, b.String())
	return err
}

func pathData(pts []Point) string {
	var b strings.Builder
	for i, p := range pts {
		if i == 0 {
			b.WriteString("M")
		} else {
			b.WriteString(" L")
		}
		b.WriteString(num(p.X))
		b.WriteString(" ")
		b.WriteString(num(p.Y))
	}
	return b.String()
}

func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
