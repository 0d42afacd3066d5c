package workers

import (
	"context"
	"math"
	"testing"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, []string{"adversaries may inject code"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, []string{"adversaries may inject code"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a[0]) != 64 {
		t.Fatalf("dimension: want=64 got=%d", len(a[0]))
	}
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("identical text must embed identically, differs at %d", i)
		}
	}
}

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(128)
	vecs, err := e.Embed(context.Background(), []string{"credential dumping via lsass memory"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	if diff := math.Sqrt(norm) - 1.0; diff > 0.001 || diff < -0.001 {
		t.Fatalf("norm: want=1.0 got=%v", math.Sqrt(norm))
	}
}

func TestLocalEmbedderDistinguishesTexts(t *testing.T) {
	e := NewLocalEmbedder(128)
	vecs, err := e.Embed(context.Background(), []string{"phishing attachment", "kernel rootkit"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different texts must not embed identically")
	}
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder(32)
	vecs, err := e.Embed(context.Background(), []string{""})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Fatalf("empty text must embed to the zero vector")
		}
	}
}

func TestLocalEmbedderDefaultDim(t *testing.T) {
	e := NewLocalEmbedder(0)
	if e.Dim() != 256 {
		t.Fatalf("default dim: want=256 got=%d", e.Dim())
	}
}
