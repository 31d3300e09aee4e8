package tensor

import (
	"fmt"
)

// Parameter is a trainable tensor and its gradient.
type Parameter struct {
	Name  string
	Value *Tensor
	Grad  *Tensor
}

// Parameters returns every trainable tensor in state-dict order.
func (m *GPT) Parameters() []*Parameter {
	params := make([]*Parameter, 0, 2+12*len(m.H)+3)
	add := func(name string, value, grad *Tensor) {
		params = append(params, &Parameter{Name: name, Value: value, Grad: grad})
	}
	linear := func(prefix string, l *Linear) {
		add(prefix+".weight", l.Weight, l.WeightGrad)
		if l.Bias != nil {
			add(prefix+".bias", l.Bias, l.BiasGrad)
		}
	}
	norm := func(prefix string, ln *LayerNormLayer) {
		add(prefix+".weight", ln.Weight, ln.WeightGrad)
		add(prefix+".bias", ln.Bias, ln.BiasGrad)
	}

	add("transformer.wte.weight", m.Wte.Weight, m.Wte.WeightGrad)
	add("transformer.wpe.weight", m.Wpe.Weight, m.Wpe.WeightGrad)
	for i, block := range m.H {
		prefix := fmt.Sprintf("transformer.h.%d", i)
		norm(prefix+".ln_1", block.LN1)
		linear(prefix+".attn.c_attn", block.Attention.CAttn)
		linear(prefix+".attn.c_proj", block.Attention.CProj)
		norm(prefix+".ln_2", block.LN2)
		linear(prefix+".mlp.c_fc", block.MLP.CFc)
		linear(prefix+".mlp.c_proj", block.MLP.CProj)
	}
	norm("transformer.ln_f", m.LnF)
	linear("lm_head", m.LMHead)
	return params
}

// StateDict maps parameter names to their tensors. The tensors are shared
// with the model, so writing into them updates the model.
func (m *GPT) StateDict() map[string]*Tensor {
	sd := make(map[string]*Tensor)
	for _, p := range m.Parameters() {
		sd[p.Name] = p.Value
	}
	return sd
}

// NumParams counts trainable scalars.
func (m *GPT) NumParams() int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Value.Size()
	}
	return n
}
