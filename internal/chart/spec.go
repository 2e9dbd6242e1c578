package chart

// Kind selects the visual form of a rendered chart.
type Kind string

const (
	KindBar        Kind = "bar"
	KindLine       Kind = "line"
	KindComparison Kind = "comparison"
)

// Point is one labeled value in a chart series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Spec is the declarative chart description produced during synthesis.
// Rendering never fails: a spec with too few points is substituted with a
// placeholder series.
type Spec struct {
	Kind   Kind    `json:"type"`
	Title  string  `json:"title"`
	Points []Point `json:"data_points"`
}

// Usable reports whether the spec carries enough real data to plot.
func (s Spec) Usable() bool {
	return len(s.Points) >= 2
}

func (k Kind) valid() bool {
	switch k {
	case KindBar, KindLine, KindComparison:
		return true
	}
	return false
}

// Normalize coerces unknown kinds to bar and trims oversized series.
func (s Spec) Normalize() Spec {
	if !s.Kind.valid() {
		s.Kind = KindBar
	}
	if len(s.Points) > 10 {
		s.Points = s.Points[:10]
	}
	return s
}
