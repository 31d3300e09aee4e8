package tensor

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestMatMul(t *testing.T) {
	a := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := FromData([]float32{7, 8, 9, 10, 11, 12}, 3, 2)

	got := MatMul(a, b)

	if diff := cmp.Diff([]int{2, 2}, got.Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{58, 64, 139, 154}, got.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestTranspose(t *testing.T) {
	a := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	got := Transpose(a)

	if diff := cmp.Diff([]int{3, 2}, got.Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 4, 2, 5, 3, 6}, got.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestReshapeSharesData(t *testing.T) {
	a := NewTensor(2, 3)
	b := a.Reshape(3, 2)
	b.Set(7, 2, 1)

	if a.At(1, 2) != 7 {
		t.Errorf("Expected reshape to share data, got %v", a.Data)
	}
	if a.Rows() != 2 || a.Cols() != 3 {
		t.Errorf("Expected 2x3 view, got %dx%d", a.Rows(), a.Cols())
	}
}

func TestSoftmax(t *testing.T) {
	negInf := float32(math.Inf(-1))
	x := FromData([]float32{1, 2, 3, 1000, 1000, negInf}, 2, 3)
	got := Softmax(x)

	for i := 0; i < got.Rows(); i++ {
		var sum float32
		for _, p := range got.Row(i) {
			sum += p
		}
		if math.Abs(float64(sum-1)) > 1e-6 {
			t.Errorf("row %d: Expected sum 1, got %f", i, sum)
		}
	}
	if got.At(1, 2) != 0 {
		t.Errorf("Expected -inf to map to 0, got %f", got.At(1, 2))
	}
	if math.Abs(float64(got.At(1, 0)-0.5)) > 1e-6 {
		t.Errorf("Expected 0.5 for large equal logits, got %f", got.At(1, 0))
	}
	if x.At(0, 0) != 1 {
		t.Errorf("Softmax modified its input")
	}
}

func TestGELU(t *testing.T) {
	tests := []struct {
		x    float32
		want float32
	}{
		{0, 0},
		{1, 0.841192},
		{-1, -0.158808},
		{10, 10},
		{-10, 0},
	}
	for _, tt := range tests {
		got := gelu(tt.x)
		if math.Abs(float64(got-tt.want)) > 1e-5 {
			t.Errorf("gelu(%v): Expected %v, got %v", tt.x, tt.want, got)
		}
	}
}

func TestGELUGrad(t *testing.T) {
	const eps = 1e-3
	for _, x := range []float64{-3, -1, -0.2, 0, 0.5, 2} {
		num := (float64(gelu(float32(x+eps))) - float64(gelu(float32(x-eps)))) / (2 * eps)
		got := float64(geluGrad(float32(x)))
		if math.Abs(num-got) > 1e-3 {
			t.Errorf("geluGrad(%v): Expected %v, got %v", x, num, got)
		}
	}
}

func TestLinearMatchesMatMul(t *testing.T) {
	l := &Linear{
		In:     3,
		Out:    2,
		Weight: FromData([]float32{1, 0, -1, 2, 1, 0}, 2, 3),
		Bias:   FromData([]float32{0.5, -0.5}, 2),
	}
	x := FromData([]float32{1, 2, 3, 4, 5, 6}, 2, 3)

	got := l.Forward(x)
	want := Add(MatMul(x, Transpose(l.Weight)), FromData([]float32{0.5, -0.5, 0.5, -0.5}, 2, 2))

	if diff := cmp.Diff(want.Data, got.Data, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("linear mismatch (-want +got):\n%s", diff)
	}
}

func TestLayerNormForward(t *testing.T) {
	ln := NewLayerNorm(4)
	x := FromData([]float32{1, 2, 3, 4}, 1, 4)
	got := ln.Forward(x)

	var mean, variance float64
	for _, v := range got.Data {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range got.Data {
		variance += (float64(v) - mean) * (float64(v) - mean)
	}
	variance /= 4

	if math.Abs(mean) > 1e-6 {
		t.Errorf("Expected mean 0, got %f", mean)
	}
	if math.Abs(variance-1) > 1e-4 {
		t.Errorf("Expected variance 1, got %f", variance)
	}
}
