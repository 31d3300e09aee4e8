package nanogpt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func seqTokens(n int) []int {
	tokens := make([]int, n)
	for i := range tokens {
		tokens[i] = i
	}
	return tokens
}

func TestDataLoaderNextBatch(t *testing.T) {
	dl, err := NewDataLoader(seqTokens(13), 2, 3)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}
	if dl.NumBatches() != 2 {
		t.Errorf("Expected 2 batches, got %d", dl.NumBatches())
	}

	x, y := dl.NextBatch()
	if diff := cmp.Diff([][]int{{0, 1, 2}, {3, 4, 5}}, x); diff != "" {
		t.Errorf("x mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{1, 2, 3}, {4, 5, 6}}, y); diff != "" {
		t.Errorf("y mismatch (-want +got):\n%s", diff)
	}

	x, y = dl.NextBatch()
	if diff := cmp.Diff([][]int{{6, 7, 8}, {9, 10, 11}}, x); diff != "" {
		t.Errorf("second x mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{7, 8, 9}, {10, 11, 12}}, y); diff != "" {
		t.Errorf("second y mismatch (-want +got):\n%s", diff)
	}

	// a third batch would need token 18, so the loader wraps
	x, _ = dl.NextBatch()
	if x[0][0] != 0 {
		t.Errorf("Expected wrap to the first batch, got %v", x)
	}
}

func TestDataLoaderReset(t *testing.T) {
	dl, err := NewDataLoader(seqTokens(30), 2, 3)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}
	dl.NextBatch()
	dl.Reset()
	x, _ := dl.NextBatch()
	if x[0][0] != 0 {
		t.Errorf("Expected first batch after reset, got %v", x)
	}
}

func TestDataLoaderBatchesAreCopies(t *testing.T) {
	tokens := seqTokens(13)
	dl, err := NewDataLoader(tokens, 2, 3)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}

	x, y := dl.NextBatch()
	x[0][0] = 99
	y[0][0] = 99
	if x[0][1] != 1 {
		t.Errorf("Expected x to be unaffected by writes to y, got %v", x)
	}
	if diff := cmp.Diff(seqTokens(13), tokens); diff != "" {
		t.Errorf("corpus modified (-want +got):\n%s", diff)
	}

	dl.Reset()
	x, y = dl.NextBatch()
	if diff := cmp.Diff([][]int{{0, 1, 2}, {3, 4, 5}}, x); diff != "" {
		t.Errorf("x mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{1, 2, 3}, {4, 5, 6}}, y); diff != "" {
		t.Errorf("y mismatch (-want +got):\n%s", diff)
	}
}

func TestDataLoaderTooSmall(t *testing.T) {
	if _, err := NewDataLoader(seqTokens(6), 2, 3); !errors.Is(err, ErrCorpusTooSmall) {
		t.Errorf("Expected ErrCorpusTooSmall, got %v", err)
	}
	if _, err := NewDataLoader(seqTokens(7), 2, 3); err != nil {
		t.Errorf("Expected exactly B*T+1 tokens to be enough, got %v", err)
	}
	if _, err := NewDataLoader(seqTokens(7), 0, 3); err == nil {
		t.Errorf("Expected error for zero batch size")
	}
}

func TestLoadCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte("héllo wörld"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		maxChars int
		want     string
	}{
		{0, "héllo wörld"},
		{5, "héllo"},
		{8, "héllo wö"},
		{100, "héllo wörld"},
	}
	for _, tt := range tests {
		got, err := LoadCorpus(path, tt.maxChars)
		if err != nil {
			t.Fatalf("LoadCorpus failed: %v", err)
		}
		if got != tt.want {
			t.Errorf("maxChars %d: Expected %q, got %q", tt.maxChars, tt.want, got)
		}
	}

	if _, err := LoadCorpus(filepath.Join(t.TempDir(), "missing.txt"), 10); err == nil {
		t.Errorf("Expected error for missing corpus")
	}
}
