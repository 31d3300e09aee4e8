package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/blas"
)

// Layers keep the activations of their last Forward so Backward can run
// without a tape. They are not safe for concurrent use.

// Linear applies y = x W^T + b. Weight is stored [Out, In].
type Linear struct {
	In, Out int

	Weight     *Tensor // [out, in]
	Bias       *Tensor // [out], nil when the layer has no bias
	WeightGrad *Tensor
	BiasGrad   *Tensor

	input *Tensor
}

// NewLinear creates a linear layer initialized from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(in, out int, bias bool, rng *rand.Rand) *Linear {
	l := &Linear{
		In:         in,
		Out:        out,
		Weight:     NewTensor(out, in),
		WeightGrad: NewTensor(out, in),
	}
	bound := 1 / math.Sqrt(float64(in))
	fillUniform(l.Weight.Data, bound, rng)
	if bias {
		l.Bias = NewTensor(out)
		l.BiasGrad = NewTensor(out)
		fillUniform(l.Bias.Data, bound, rng)
	}
	return l
}

// Forward maps x [..., In] to [..., Out].
func (l *Linear) Forward(x *Tensor) *Tensor {
	if x.Cols() != l.In {
		panic(fmt.Sprintf("linear: input width %d, want %d", x.Cols(), l.In))
	}
	n := x.Rows()
	shape := append(append([]int(nil), x.Shape[:len(x.Shape)-1]...), l.Out)
	y := NewTensor(shape...)

	gemm(blas.NoTrans, blas.Trans, 1, x.Data, n, l.In, l.Weight.Data, l.Out, l.In, 0, y.Data, n, l.Out)
	if l.Bias != nil {
		for i := 0; i < n; i++ {
			row := y.Data[i*l.Out : (i+1)*l.Out]
			for j, b := range l.Bias.Data {
				row[j] += b
			}
		}
	}

	l.input = x
	return y
}

// Backward accumulates parameter gradients and returns dL/dx.
func (l *Linear) Backward(dout *Tensor) *Tensor {
	if l.input == nil {
		panic("linear: backward before forward")
	}
	n := dout.Rows()
	dx := NewTensor(l.input.Shape...)

	// dx = dout W
	gemm(blas.NoTrans, blas.NoTrans, 1, dout.Data, n, l.Out, l.Weight.Data, l.Out, l.In, 0, dx.Data, n, l.In)
	// dW += dout^T x
	gemm(blas.Trans, blas.NoTrans, 1, dout.Data, n, l.Out, l.input.Data, n, l.In, 1, l.WeightGrad.Data, l.Out, l.In)
	if l.BiasGrad != nil {
		for i := 0; i < n; i++ {
			row := dout.Data[i*l.Out : (i+1)*l.Out]
			for j, g := range row {
				l.BiasGrad.Data[j] += g
			}
		}
	}
	return dx
}

// Embedding is a learned lookup table of Num vectors of size Dim.
type Embedding struct {
	Num, Dim int

	Weight     *Tensor // [num, dim]
	WeightGrad *Tensor
}

// NewEmbedding creates a table initialized from N(0, 1).
func NewEmbedding(num, dim int, rng *rand.Rand) *Embedding {
	e := &Embedding{
		Num:        num,
		Dim:        dim,
		Weight:     NewTensor(num, dim),
		WeightGrad: NewTensor(num, dim),
	}
	for i := range e.Weight.Data {
		e.Weight.Data[i] = float32(rng.NormFloat64())
	}
	return e
}

// Lookup returns the rows for ids as a [len(ids), Dim] tensor.
func (e *Embedding) Lookup(ids []int) (*Tensor, error) {
	out := NewTensor(len(ids), e.Dim)
	for i, id := range ids {
		if id < 0 || id >= e.Num {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrTokenOutOfRange, id, e.Num)
		}
		copy(out.Row(i), e.Weight.Row(id))
	}
	return out, nil
}

// Backward scatter-adds dout [len(ids), Dim] into the rows of the gradient.
func (e *Embedding) Backward(ids []int, dout *Tensor) {
	for i, id := range ids {
		g := e.WeightGrad.Row(id)
		for j, d := range dout.Row(i) {
			g[j] += d
		}
	}
}

// LayerNormLayer normalizes the last dimension and applies an affine map
type LayerNormLayer struct {
	Dim        int
	Eps        float32
	Weight     *Tensor
	Bias       *Tensor
	WeightGrad *Tensor
	BiasGrad   *Tensor

	input *Tensor
	mean  []float32
	rstd  []float32
}

// NewLayerNorm creates a layer norm with weight 1 and bias 0.
func NewLayerNorm(dim int) *LayerNormLayer {
	ln := &LayerNormLayer{
		Dim:        dim,
		Eps:        1e-5,
		Weight:     NewTensor(dim),
		Bias:       NewTensor(dim),
		WeightGrad: NewTensor(dim),
		BiasGrad:   NewTensor(dim),
	}
	for i := range ln.Weight.Data {
		ln.Weight.Data[i] = 1
	}
	return ln
}

// Forward applies layer normalization
func (ln *LayerNormLayer) Forward(x *Tensor) *Tensor {
	rows := x.Rows()
	out := NewTensor(x.Shape...)
	ln.mean = make([]float32, rows)
	ln.rstd = make([]float32, rows)

	for i := 0; i < rows; i++ {
		in := x.Row(i)
		var mean float64
		for _, v := range in {
			mean += float64(v)
		}
		mean /= float64(ln.Dim)

		var variance float64
		for _, v := range in {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(ln.Dim)
		rstd := 1 / math.Sqrt(variance+float64(ln.Eps))

		o := out.Row(i)
		for j, v := range in {
			norm := float32((float64(v) - mean) * rstd)
			o[j] = norm*ln.Weight.Data[j] + ln.Bias.Data[j]
		}
		ln.mean[i] = float32(mean)
		ln.rstd[i] = float32(rstd)
	}

	ln.input = x
	return out
}

// Backward accumulates weight and bias gradients and returns dL/dx.
func (ln *LayerNormLayer) Backward(dout *Tensor) *Tensor {
	if ln.input == nil {
		panic("layernorm: backward before forward")
	}
	dx := NewTensor(ln.input.Shape...)
	norm := make([]float32, ln.Dim)
	dnorm := make([]float32, ln.Dim)

	for i := 0; i < dout.Rows(); i++ {
		in := ln.input.Row(i)
		d := dout.Row(i)
		mean, rstd := ln.mean[i], ln.rstd[i]

		var dnormMean, dnormNormMean float32
		for j := range d {
			norm[j] = (in[j] - mean) * rstd
			dnorm[j] = ln.Weight.Data[j] * d[j]
			dnormMean += dnorm[j]
			dnormNormMean += dnorm[j] * norm[j]
		}
		dnormMean /= float32(ln.Dim)
		dnormNormMean /= float32(ln.Dim)

		g := dx.Row(i)
		for j := range d {
			ln.BiasGrad.Data[j] += d[j]
			ln.WeightGrad.Data[j] += norm[j] * d[j]
			g[j] = (dnorm[j] - dnormMean - norm[j]*dnormNormMean) * rstd
		}
	}
	return dx
}

// MLP is the position-wise feed-forward network: c_fc, GELU, c_proj
type MLP struct {
	CFc   *Linear // [4C, C]
	CProj *Linear // [C, 4C]

	pre *Tensor
}

// NewMLP creates the feed-forward block for embedding width dim.
func NewMLP(dim int, rng *rand.Rand) *MLP {
	return &MLP{
		CFc:   NewLinear(dim, 4*dim, true, rng),
		CProj: NewLinear(4*dim, dim, true, rng),
	}
}

// Forward applies the feed-forward network
func (m *MLP) Forward(x *Tensor) *Tensor {
	m.pre = m.CFc.Forward(x)
	return m.CProj.Forward(GELU(m.pre))
}

// Backward returns dL/dx.
func (m *MLP) Backward(dout *Tensor) *Tensor {
	dact := m.CProj.Backward(dout)
	for i, x := range m.pre.Data {
		dact.Data[i] *= geluGrad(x)
	}
	return m.CFc.Backward(dact)
}

// TransformerBlock implements a single pre-norm transformer layer
type TransformerBlock struct {
	LN1       *LayerNormLayer
	Attention *CausalSelfAttention
	LN2       *LayerNormLayer
	MLP       *MLP
}

// NewTransformerBlock creates one layer for cfg.
func NewTransformerBlock(cfg GPTConfig, mask *Tensor, rng *rand.Rand) *TransformerBlock {
	return &TransformerBlock{
		LN1:       NewLayerNorm(cfg.NEmbd),
		Attention: NewCausalSelfAttention(cfg, mask, rng),
		LN2:       NewLayerNorm(cfg.NEmbd),
		MLP:       NewMLP(cfg.NEmbd, rng),
	}
}

// Forward applies the block
func (block *TransformerBlock) Forward(x *Tensor) *Tensor {
	// x = x + attn(ln_1(x))
	x = Add(x, block.Attention.Forward(block.LN1.Forward(x)))
	// x = x + mlp(ln_2(x))
	return Add(x, block.MLP.Forward(block.LN2.Forward(x)))
}

// Backward returns dL/dx for the block input.
func (block *TransformerBlock) Backward(dout *Tensor) *Tensor {
	// Residual branches pass the gradient through unchanged and add their own.
	dmid := dout.Clone()
	AddInPlace(dmid, block.LN2.Backward(block.MLP.Backward(dout)))

	dx := dmid.Clone()
	AddInPlace(dx, block.LN1.Backward(block.Attention.Backward(dmid)))
	return dx
}

func fillUniform(data []float32, bound float64, rng *rand.Rand) {
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
}
