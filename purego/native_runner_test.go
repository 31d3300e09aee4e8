package purego

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"nano-gpt-go/nanogpt"
	"nano-gpt-go/purego/tensor"
)

func newTinyRunner(t *testing.T, vocab int) *NativeModelRunner {
	t.Helper()
	model, err := tensor.NewGPT(tensor.GPTConfig{BlockSize: 8, VocabSize: vocab, NLayer: 2, NHead: 2, NEmbd: 8}, 3)
	if err != nil {
		t.Fatalf("NewGPT failed: %v", err)
	}
	return NewNativeModelRunner(model)
}

func maxAbsDiff(a, b []float32) float64 {
	var d float64
	for i := range a {
		d = math.Max(d, math.Abs(float64(a[i]-b[i])))
	}
	return d
}

func TestNativeRunnerBatchedMatchesSingle(t *testing.T) {
	runner := newTinyRunner(t, 11)
	seqs := [][]int{{1, 2, 3}, {4, 5, 6}}

	batched, err := runner.NextTokenLogits(seqs)
	if err != nil {
		t.Fatalf("NextTokenLogits failed: %v", err)
	}
	for i, seq := range seqs {
		single, err := runner.NextTokenLogits([][]int{seq})
		if err != nil {
			t.Fatalf("NextTokenLogits failed: %v", err)
		}
		if len(batched[i]) != 11 {
			t.Fatalf("Expected 11 logits, got %d", len(batched[i]))
		}
		if d := maxAbsDiff(batched[i], single[0]); d > 1e-5 {
			t.Errorf("row %d: batched and single logits differ by %g", i, d)
		}
	}
}

func TestNativeRunnerRaggedBatch(t *testing.T) {
	runner := newTinyRunner(t, 11)

	out, err := runner.NextTokenLogits([][]int{{1}, {1, 2, 3}})
	if err != nil {
		t.Fatalf("NextTokenLogits failed: %v", err)
	}
	want, err := runner.NextTokenLogits([][]int{{1, 2, 3}})
	if err != nil {
		t.Fatalf("NextTokenLogits failed: %v", err)
	}
	if d := maxAbsDiff(out[1], want[0]); d > 1e-5 {
		t.Errorf("ragged row differs from single forward by %g", d)
	}
}

func TestNativeRunnerErrors(t *testing.T) {
	runner := newTinyRunner(t, 11)

	if _, err := runner.NextTokenLogits(nil); err == nil {
		t.Errorf("Expected error for empty batch")
	}
	_, err := runner.NextTokenLogits([][]int{make([]int, 9)})
	if !errors.Is(err, tensor.ErrSequenceTooLong) {
		t.Errorf("Expected ErrSequenceTooLong, got %v", err)
	}

	runner.Close()
	if _, err := runner.NextTokenLogits([][]int{{1}}); err == nil {
		t.Errorf("Expected error after Close")
	}
}

func TestGenerateWithNativeRunner(t *testing.T) {
	tok, err := NewCharTokenizer("hello world")
	if err != nil {
		t.Fatalf("NewCharTokenizer failed: %v", err)
	}
	runner := newTinyRunner(t, tok.VocabSize())
	gen := nanogpt.NewGenerator(runner, tok)
	defer gen.Close()

	sp, err := nanogpt.NewSamplingParams(
		nanogpt.WithMaxLength(12),
		nanogpt.WithNumReturnSequences(2),
		nanogpt.WithTopK(3),
	)
	if err != nil {
		t.Fatalf("NewSamplingParams failed: %v", err)
	}

	outputs, err := gen.Generate(context.Background(), "he", sp, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("Expected 2 outputs, got %d", len(outputs))
	}
	for i, out := range outputs {
		// 12 tokens exceed the block size of 8, so the context gets cropped
		if len(out.TokenIDs) != 12 {
			t.Errorf("row %d: Expected 12 tokens, got %d", i, len(out.TokenIDs))
		}
		if len([]rune(out.Text)) != 12 || out.Text[:2] != "he" {
			t.Errorf("row %d: unexpected text %q", i, out.Text)
		}
	}
}

func TestCompareLogits(t *testing.T) {
	got := []float32{1, 2, 3, 0, 5, 1}
	want := []float32{1, 2.5, 3, 9, 5, 1}

	c, err := CompareLogits(got, want, 3)
	if err != nil {
		t.Fatalf("CompareLogits failed: %v", err)
	}
	if c.MaxAbsDiff != 9 {
		t.Errorf("Expected max diff 9, got %g", c.MaxAbsDiff)
	}
	if math.Abs(c.MeanAbsDiff-9.5/6) > 1e-9 {
		t.Errorf("Expected mean diff %g, got %g", 9.5/6, c.MeanAbsDiff)
	}
	// row 0 argmax agrees (2 vs 2), row 1 does not (1 vs 0)
	if c.Positions != 2 || c.ArgmaxAgree != 1 {
		t.Errorf("Expected 1 of 2 argmax matches, got %d of %d", c.ArgmaxAgree, c.Positions)
	}

	if _, err := CompareLogits(got, want[:3], 3); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, err := CompareLogits(got, want, 4); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for bad vocab, got %v", err)
	}
}

func TestCheckpointRunner(t *testing.T) {
	runner := newTinyRunner(t, 11)
	path := filepath.Join(t.TempDir(), "tiny.safetensors")
	if err := tensor.SaveCheckpoint(runner.Model(), path); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	loaded, err := NewCheckpointRunner(path)
	if err != nil {
		t.Fatalf("NewCheckpointRunner failed: %v", err)
	}
	seqs := [][]int{{1, 2, 3}}
	want, err := runner.NextTokenLogits(seqs)
	if err != nil {
		t.Fatalf("NextTokenLogits failed: %v", err)
	}
	got, err := loaded.NextTokenLogits(seqs)
	if err != nil {
		t.Fatalf("NextTokenLogits failed: %v", err)
	}
	if d := maxAbsDiff(want[0], got[0]); d != 0 {
		t.Errorf("Expected identical logits after reload, max diff %g", d)
	}

	if _, err := NewCheckpointRunner(filepath.Join(t.TempDir(), "missing.safetensors")); err == nil {
		t.Errorf("Expected error for a missing checkpoint")
	}
	if _, err := NewPretrainedRunner("gpt2", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("Expected error for missing pretrained weights")
	}
}
