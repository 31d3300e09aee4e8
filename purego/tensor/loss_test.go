package tensor

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCrossEntropyUniform(t *testing.T) {
	logits := NewTensor(2, 4)
	loss, grad, err := CrossEntropy(logits, []int{1, 3})
	if err != nil {
		t.Fatalf("CrossEntropy failed: %v", err)
	}

	if math.Abs(float64(loss)-math.Log(4)) > 1e-6 {
		t.Errorf("Expected loss ln 4, got %f", loss)
	}
	want := []float32{
		0.125, -0.375, 0.125, 0.125,
		0.125, 0.125, 0.125, -0.375,
	}
	if diff := cmp.Diff(want, grad.Data, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("gradient mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossEntropyIgnoreIndex(t *testing.T) {
	logits := FromData([]float32{
		2, 0, 0,
		5, -5, 1,
	}, 2, 3)

	loss, grad, err := CrossEntropy(logits, []int{0, IgnoreIndex})
	if err != nil {
		t.Fatalf("CrossEntropy failed: %v", err)
	}

	sum := math.Exp(2) + 2
	want := -math.Log(math.Exp(2) / sum)
	if math.Abs(float64(loss)-want) > 1e-5 {
		t.Errorf("Expected loss %f, got %f", want, loss)
	}
	for j, g := range grad.Row(1) {
		if g != 0 {
			t.Errorf("ignored row: Expected zero gradient at %d, got %f", j, g)
		}
	}
}

func TestCrossEntropyErrors(t *testing.T) {
	logits := NewTensor(2, 3)

	tests := []struct {
		name    string
		targets []int
		wantErr error
	}{
		{"all ignored", []int{IgnoreIndex, IgnoreIndex}, ErrBadBatch},
		{"out of range", []int{0, 3}, ErrTokenOutOfRange},
		{"negative", []int{-1, 0}, ErrTokenOutOfRange},
		{"wrong count", []int{0}, ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := CrossEntropy(logits, tt.targets)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
