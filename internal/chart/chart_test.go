package chart

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRenderDeterministic(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Kind:  KindBar,
		Title: "Funding rounds",
		Points: []Point{
			{Label: "Seed", Value: 2_500_000},
			{Label: "Series A", Value: 18_000_000},
			{Label: "Series B", Value: 1_200_000_000},
		},
	}

	r := NewRenderer(t.TempDir())
	p1, err := r.Render(spec, "run-a")
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	p2, err := r.Render(spec, "run-b")
	if err != nil {
		t.Fatalf("second render: %v", err)
	}

	b1, err := os.ReadFile(p1)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := os.ReadFile(p2)
	if err != nil {
		t.Fatal(err)
	}
	if len(b1) == 0 {
		t.Fatal("empty PNG")
	}
	if !bytes.Equal(b1, b2) {
		t.Fatal("same spec rendered differently")
	}
}

func TestRenderSubstitutesPlaceholder(t *testing.T) {
	t.Parallel()

	r := NewRenderer(t.TempDir())
	path, err := r.Render(Spec{Kind: KindBar, Title: "One point", Points: []Point{{Label: "only", Value: 1}}}, "short")
	if err != nil {
		t.Fatalf("render with short series: %v", err)
	}
	if filepath.Ext(path) != ".png" {
		t.Fatalf("unexpected path %q", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Fatal("placeholder produced an empty file")
	}
}

func TestRenderUnknownKindFallsBackToBar(t *testing.T) {
	t.Parallel()

	r := NewRenderer(t.TempDir())
	_, err := r.Render(Spec{
		Kind:  Kind("pie"),
		Title: "odd kind",
		Points: []Point{
			{Label: "a", Value: 1},
			{Label: "b", Value: 2},
		},
	}, "odd")
	if err != nil {
		t.Fatalf("render with unknown kind: %v", err)
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want string
	}{
		{1_200_000_000, "$1.2B"},
		{3_400_000, "$3.4M"},
		{560_000, "$560K"},
		{42, "42"},
		{-2_000_000, "-$2.0M"},
		{3.5, "3.5"},
	}
	for _, c := range cases {
		if got := FormatValue(c.in); got != c.want {
			t.Errorf("FormatValue(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
