package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// CausalSelfAttention implements multi-head self-attention where position t
// only attends to positions <= t.
type CausalSelfAttention struct {
	NumHeads int
	HeadDim  int
	Hidden   int

	CAttn *Linear // fused q, k, v projection [3*hidden, hidden]
	CProj *Linear // output projection [hidden, hidden]

	// Mask is the lower-triangular [blockSize, blockSize] buffer; zero entries
	// are masked to -inf before the softmax. It is not a parameter.
	Mask      *Tensor
	blockSize int

	qkv        *Tensor // [B, T, 3C]
	att        *Tensor // [B, nh, T, T] post-softmax
	batch, seq int
}

// NewCausalSelfAttention creates the attention sub-layer for cfg. Layers of
// one model share mask; nil builds a fresh one.
func NewCausalSelfAttention(cfg GPTConfig, mask *Tensor, rng *rand.Rand) *CausalSelfAttention {
	if cfg.NEmbd%cfg.NHead != 0 {
		panic(fmt.Sprintf("n_embd %d not divisible by n_head %d", cfg.NEmbd, cfg.NHead))
	}
	if mask == nil {
		mask = causalMask(cfg.BlockSize)
	}
	return &CausalSelfAttention{
		NumHeads:  cfg.NHead,
		HeadDim:   cfg.NEmbd / cfg.NHead,
		Hidden:    cfg.NEmbd,
		CAttn:     NewLinear(cfg.NEmbd, 3*cfg.NEmbd, true, rng),
		CProj:     NewLinear(cfg.NEmbd, cfg.NEmbd, true, rng),
		Mask:      mask,
		blockSize: cfg.BlockSize,
	}
}

func causalMask(n int) *Tensor {
	m := NewTensor(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			m.Data[i*n+j] = 1
		}
	}
	return m
}

func (mha *CausalSelfAttention) masked(t, t2 int) bool {
	return mha.Mask.Data[t*mha.blockSize+t2] == 0
}

// Forward maps x [B, T, C] to [B, T, C].
func (mha *CausalSelfAttention) Forward(x *Tensor) *Tensor {
	if len(x.Shape) != 3 || x.Shape[2] != mha.Hidden {
		panic(fmt.Sprintf("attention: input shape %v, want [B, T, %d]", x.Shape, mha.Hidden))
	}
	B, T, C := x.Shape[0], x.Shape[1], mha.Hidden
	if T > mha.blockSize {
		panic(fmt.Sprintf("attention: sequence %d exceeds block size %d", T, mha.blockSize))
	}
	nh, hs := mha.NumHeads, mha.HeadDim
	scale := float32(1 / math.Sqrt(float64(hs)))

	qkv := mha.CAttn.Forward(x)
	att := NewTensor(B, nh, T, T)
	y := NewTensor(B, T, C)
	negInf := float32(math.Inf(-1))

	for b := 0; b < B; b++ {
		for h := 0; h < nh; h++ {
			for t := 0; t < T; t++ {
				q := mha.slice(qkv, b, t, 0, h)
				row := att.Data[((b*nh+h)*T+t)*T : ((b*nh+h)*T+t+1)*T]

				// att = (q @ k^T) / sqrt(hs), masked above the diagonal
				for t2 := 0; t2 < T; t2++ {
					if mha.masked(t, t2) {
						row[t2] = negInf
						continue
					}
					k := mha.slice(qkv, b, t2, 1, h)
					row[t2] = dot(q, k) * scale
				}
				softmaxInPlace(row)

				// y = att @ v
				out := y.Data[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]
				for t2, a := range row {
					if a == 0 {
						continue
					}
					v := mha.slice(qkv, b, t2, 2, h)
					for d := range out {
						out[d] += a * v[d]
					}
				}
			}
		}
	}

	mha.qkv, mha.att = qkv, att
	mha.batch, mha.seq = B, T
	return mha.CProj.Forward(y)
}

// Backward returns dL/dx for the last Forward input.
func (mha *CausalSelfAttention) Backward(dout *Tensor) *Tensor {
	if mha.qkv == nil {
		panic("attention: backward before forward")
	}
	B, T, C := mha.batch, mha.seq, mha.Hidden
	nh, hs := mha.NumHeads, mha.HeadDim
	scale := float32(1 / math.Sqrt(float64(hs)))

	dy := mha.CProj.Backward(dout)
	dqkv := NewTensor(mha.qkv.Shape...)
	datt := make([]float32, T)

	for b := 0; b < B; b++ {
		for h := 0; h < nh; h++ {
			for t := 0; t < T; t++ {
				row := mha.att.Data[((b*nh+h)*T+t)*T : ((b*nh+h)*T+t+1)*T]
				dyh := dy.Data[(b*T+t)*C+h*hs : (b*T+t)*C+(h+1)*hs]

				// through y = att @ v
				var weighted float32
				for t2 := 0; t2 <= t; t2++ {
					v := mha.slice(mha.qkv, b, t2, 2, h)
					dv := mha.slice(dqkv, b, t2, 2, h)
					datt[t2] = dot(dyh, v)
					for d := range dv {
						dv[d] += row[t2] * dyh[d]
					}
					weighted += row[t2] * datt[t2]
				}

				// through softmax and the scaled q.k product
				q := mha.slice(mha.qkv, b, t, 0, h)
				dq := mha.slice(dqkv, b, t, 0, h)
				for t2 := 0; t2 <= t; t2++ {
					if mha.masked(t, t2) {
						continue
					}
					dpre := row[t2] * (datt[t2] - weighted) * scale
					k := mha.slice(mha.qkv, b, t2, 1, h)
					dk := mha.slice(dqkv, b, t2, 1, h)
					for d := 0; d < hs; d++ {
						dq[d] += dpre * k[d]
						dk[d] += dpre * q[d]
					}
				}
			}
		}
	}

	return mha.CAttn.Backward(dqkv)
}

// slice returns head h of part (0=q, 1=k, 2=v) at batch b, position t of a
// [B, T, 3C] tensor.
func (mha *CausalSelfAttention) slice(qkv *Tensor, b, t, part, h int) []float32 {
	C := mha.Hidden
	off := (b*qkv.Shape[1]+t)*3*C + part*C + h*mha.HeadDim
	return qkv.Data[off : off+mha.HeadDim]
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
