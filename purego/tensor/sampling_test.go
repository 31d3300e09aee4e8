package tensor

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestArgmax(t *testing.T) {
	if got := Argmax([]float32{0.1, 3, -1, 3}); got != 1 {
		t.Errorf("Expected 1, got %d", got)
	}
}

func TestSampleTopK(t *testing.T) {
	logits := []float32{5, 4, 0, -1, 4.5}
	params := &SamplingParams{Temperature: 1, TopP: 1, TopK: 2}
	rng := rand.New(rand.NewPCG(42, 0))

	seen := map[int]int{}
	for i := 0; i < 500; i++ {
		seen[Sample(logits, params, rng)]++
	}
	for id := range seen {
		if id != 0 && id != 4 {
			t.Errorf("Expected only the top 2 ids, sampled %d", id)
		}
	}
	if seen[0] == 0 || seen[4] == 0 {
		t.Errorf("Expected both top ids to be sampled, got %v", seen)
	}
	if diff := cmp.Diff([]float32{5, 4, 0, -1, 4.5}, logits); diff != "" {
		t.Errorf("Sample modified logits (-want +got):\n%s", diff)
	}
}

func TestSampleGreedy(t *testing.T) {
	logits := []float32{1, 7, 2}
	rng := rand.New(rand.NewPCG(1, 2))

	if got := Sample(logits, &SamplingParams{Temperature: 0}, rng); got != 1 {
		t.Errorf("temperature 0: Expected 1, got %d", got)
	}
	if got := Sample(logits, &SamplingParams{Temperature: 1, TopP: 1, TopK: 1}, rng); got != 1 {
		t.Errorf("top-k 1: Expected 1, got %d", got)
	}
}

func TestSampleTopP(t *testing.T) {
	// probabilities roughly 0.66, 0.24, 0.09, 0.01
	logits := []float32{3, 2, 1, -1}
	params := &SamplingParams{Temperature: 1, TopP: 0.8}
	rng := rand.New(rand.NewPCG(7, 7))

	for i := 0; i < 300; i++ {
		if id := Sample(logits, params, rng); id > 1 {
			t.Fatalf("Expected nucleus {0, 1}, sampled %d", id)
		}
	}
}

func TestSampleReproducible(t *testing.T) {
	logits := []float32{0.3, 0.1, 0.2, 0.25, 0.15}
	params := DefaultSamplingParams()

	draw := func() []int {
		rng := rand.New(rand.NewPCG(42, 42))
		out := make([]int, 20)
		for i := range out {
			out[i] = Sample(logits, params, rng)
		}
		return out
	}
	if diff := cmp.Diff(draw(), draw()); diff != "" {
		t.Errorf("same seed gave different samples (-first +second):\n%s", diff)
	}
}
