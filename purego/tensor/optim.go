package tensor

import (
	"math"
)

// AdamW implements Adam with decoupled weight decay, matching
// torch.optim.AdamW.
type AdamW struct {
	LR          float32
	Beta1       float32
	Beta2       float32
	Eps         float32
	WeightDecay float32

	params []*Parameter
	m, v   [][]float32
	t      int
}

// AdamOption configures an AdamW optimizer.
type AdamOption func(*AdamW)

func WithBetas(beta1, beta2 float32) AdamOption {
	return func(o *AdamW) {
		o.Beta1, o.Beta2 = beta1, beta2
	}
}

func WithEps(eps float32) AdamOption {
	return func(o *AdamW) {
		o.Eps = eps
	}
}

func WithWeightDecay(wd float32) AdamOption {
	return func(o *AdamW) {
		o.WeightDecay = wd
	}
}

// NewAdamW creates an optimizer over params with torch defaults
// (betas 0.9/0.999, eps 1e-8, weight decay 0.01).
func NewAdamW(params []*Parameter, lr float32, opts ...AdamOption) *AdamW {
	o := &AdamW{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: 0.01,
		params:      params,
		m:           make([][]float32, len(params)),
		v:           make([][]float32, len(params)),
	}
	for _, opt := range opts {
		opt(o)
	}
	for i, p := range params {
		o.m[i] = make([]float32, p.Value.Size())
		o.v[i] = make([]float32, p.Value.Size())
	}
	return o
}

// Step applies one update using the accumulated gradients.
func (o *AdamW) Step() {
	o.t++
	bc1 := float32(1 - math.Pow(float64(o.Beta1), float64(o.t)))
	bc2 := float32(1 - math.Pow(float64(o.Beta2), float64(o.t)))
	decay := 1 - o.LR*o.WeightDecay

	for i, p := range o.params {
		m, v := o.m[i], o.v[i]
		for j, g := range p.Grad.Data {
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*g
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*g*g
			mHat := m[j] / bc1
			vHat := v[j] / bc2

			w := p.Value.Data[j] * decay
			p.Value.Data[j] = w - o.LR*mHat/(float32(math.Sqrt(float64(vHat)))+o.Eps)
		}
	}
}

// ZeroGrad clears the gradients of the optimized parameters.
func (o *AdamW) ZeroGrad() {
	for _, p := range o.params {
		p.Grad.Zero()
	}
}

// Steps returns the number of updates taken.
func (o *AdamW) Steps() int {
	return o.t
}

// ClipGradNorm returns the global L2 norm of the gradients and, when
// maxNorm > 0 and the norm exceeds it, rescales them to maxNorm.
func ClipGradNorm(params []*Parameter, maxNorm float64) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad.Data {
			sum += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sum)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}

	scale := float32(maxNorm / (norm + 1e-6))
	for _, p := range params {
		for j := range p.Grad.Data {
			p.Grad.Data[j] *= scale
		}
	}
	return norm
}
