package chart

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	renderWidth  = 1200
	renderHeight = 675
)

var palette = []drawing.Color{
	{R: 0x1d, G: 0x9b, B: 0xf0, A: 255},
	{R: 0x00, G: 0xba, B: 0x7c, A: 255},
	{R: 0xf9, G: 0x18, B: 0x80, A: 255},
	{R: 0xff, G: 0xad, B: 0x1f, A: 255},
	{R: 0x79, G: 0x4b, B: 0xc4, A: 255},
}

// Renderer renders chart specs to PNG files under a fixed directory. The
// output for a given spec is deterministic.
type Renderer struct {
	dir string
}

func NewRenderer(dir string) *Renderer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Renderer{dir: dir}
}

// Render draws the spec to <dir>/<name>.png and returns the file path. Specs
// without enough real data get the placeholder series so a chart is always
// produced.
func (r *Renderer) Render(spec Spec, name string) (string, error) {
	spec = spec.Normalize()
	if !spec.Usable() {
		spec = placeholder(spec.Title)
	}

	var buf bytes.Buffer
	var err error
	switch spec.Kind {
	case KindLine:
		err = renderLine(spec, &buf)
	default:
		// bar and comparison share the bar renderer; comparison differs
		// only in per-bar coloring.
		err = renderBars(spec, &buf)
	}
	if err != nil {
		return "", fmt.Errorf("render chart: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(r.dir, name+".png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func renderBars(spec Spec, buf *bytes.Buffer) error {
	bars := make([]gochart.Value, 0, len(spec.Points))
	for i, p := range spec.Points {
		style := gochart.Style{FillColor: palette[0], StrokeWidth: 0}
		if spec.Kind == KindComparison {
			style.FillColor = palette[i%len(palette)]
		}
		bars = append(bars, gochart.Value{
			Label: fmt.Sprintf("%s\n%s", p.Label, FormatValue(p.Value)),
			Value: p.Value,
			Style: style,
		})
	}

	c := gochart.BarChart{
		Title:    spec.Title,
		Width:    renderWidth,
		Height:   renderHeight,
		BarWidth: barWidth(len(bars)),
		Bars:     bars,
	}
	return c.Render(gochart.PNG, buf)
}

func renderLine(spec Spec, buf *bytes.Buffer) error {
	xs := make([]float64, len(spec.Points))
	ys := make([]float64, len(spec.Points))
	ticks := make([]gochart.Tick, len(spec.Points))
	for i, p := range spec.Points {
		xs[i] = float64(i)
		ys[i] = p.Value
		ticks[i] = gochart.Tick{Value: float64(i), Label: p.Label}
	}

	c := gochart.Chart{
		Title:  spec.Title,
		Width:  renderWidth,
		Height: renderHeight,
		XAxis: gochart.XAxis{
			Ticks: ticks,
		},
		YAxis: gochart.YAxis{
			ValueFormatter: func(v any) string {
				f, ok := v.(float64)
				if !ok {
					return ""
				}
				return FormatValue(f)
			},
		},
		Series: []gochart.Series{
			gochart.ContinuousSeries{
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: palette[0],
					StrokeWidth: 3,
				},
			},
		},
	}
	return c.Render(gochart.PNG, buf)
}

func barWidth(n int) int {
	if n <= 0 {
		return 80
	}
	w := (renderWidth - 200) / n
	if w > 160 {
		w = 160
	}
	if w < 30 {
		w = 30
	}
	return w
}

// placeholder stands in when synthesis produced fewer than two data points.
func placeholder(title string) Spec {
	if strings.TrimSpace(title) == "" {
		title = "Relative momentum"
	}
	return Spec{
		Kind:  KindBar,
		Title: title,
		Points: []Point{
			{Label: "Before", Value: 100},
			{Label: "After", Value: 250},
		},
	}
}

// FormatValue renders large magnitudes the way posts quote them: $1.2B,
// $3.4M, $560K. Small values print bare.
func FormatValue(v float64) string {
	neg := ""
	if v < 0 {
		neg = "-"
		v = -v
	}
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s$%.1fB", neg, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s$%.1fM", neg, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s$%.0fK", neg, v/1e3)
	case v == float64(int64(v)):
		return fmt.Sprintf("%s%.0f", neg, v)
	default:
		return fmt.Sprintf("%s%.1f", neg, v)
	}
}
