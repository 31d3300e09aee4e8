package tensor

import (
	"fmt"
	"math/rand/v2"
	"time"

	"nano-gpt-go/internal/logger"
	"nano-gpt-go/internal/metrics"
)

// GPT is a GPT-2 decoder-only transformer
type GPT struct {
	Config GPTConfig

	// Embeddings
	Wte *Embedding // [vocab_size, n_embd]
	Wpe *Embedding // [block_size, n_embd]

	// Transformer blocks
	H []*TransformerBlock

	// Final layer norm
	LnF *LayerNormLayer

	// LM head, a separate parameter from Wte
	LMHead *Linear // [vocab_size, n_embd], no bias

	ids        []int
	batch, seq int
	dlogits    *Tensor
}

// NewGPT creates a randomly initialized model. The same seed always yields
// the same parameters.
func NewGPT(cfg GPTConfig, seed uint64) (*GPT, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	m := &GPT{
		Config: cfg,
		Wte:    NewEmbedding(cfg.VocabSize, cfg.NEmbd, rng),
		Wpe:    NewEmbedding(cfg.BlockSize, cfg.NEmbd, rng),
		H:      make([]*TransformerBlock, cfg.NLayer),
	}

	// one causal mask buffer shared by every layer
	mask := causalMask(cfg.BlockSize)
	for i := range m.H {
		m.H[i] = NewTransformerBlock(cfg, mask, rng)
	}
	m.LnF = NewLayerNorm(cfg.NEmbd)
	m.LMHead = NewLinear(cfg.NEmbd, cfg.VocabSize, false, rng)
	return m, nil
}

// Forward computes logits [B, T, vocab_size] for a batch of B sequences of
// equal length T.
func (m *GPT) Forward(idx [][]int) (*Tensor, error) {
	start := time.Now()
	m.dlogits = nil
	logits, err := m.forward(idx)
	if err != nil {
		return nil, err
	}
	metrics.RecordForward("eval", time.Since(start))
	return logits, nil
}

// ForwardLoss runs Forward and the cross-entropy of logits against targets,
// which must have the same shape as idx. Backward may be called afterwards.
func (m *GPT) ForwardLoss(idx, targets [][]int) (*Tensor, float32, error) {
	start := time.Now()
	m.dlogits = nil
	if len(targets) != len(idx) {
		return nil, 0, fmt.Errorf("%w: %d target rows for %d input rows", ErrBadBatch, len(targets), len(idx))
	}
	flat := make([]int, 0, len(idx)*m.Config.BlockSize)
	for b, row := range targets {
		if len(row) != len(idx[b]) {
			return nil, 0, fmt.Errorf("%w: target row %d has length %d, want %d", ErrBadBatch, b, len(row), len(idx[b]))
		}
		flat = append(flat, row...)
	}

	logits, err := m.forward(idx)
	if err != nil {
		return nil, 0, err
	}
	loss, dlogits, err := CrossEntropy(logits.Reshape(m.batch*m.seq, m.Config.VocabSize), flat)
	if err != nil {
		return nil, 0, fmt.Errorf("cross entropy: %w", err)
	}
	m.dlogits = dlogits
	metrics.RecordForward("train", time.Since(start))
	return logits, loss, nil
}

func (m *GPT) forward(idx [][]int) (*Tensor, error) {
	B, T, err := m.checkBatch(idx)
	if err != nil {
		return nil, err
	}
	C := m.Config.NEmbd

	ids := make([]int, 0, B*T)
	for _, row := range idx {
		ids = append(ids, row...)
	}

	// token embeddings of shape (B, T, n_embd)
	tok, err := m.Wte.Lookup(ids)
	if err != nil {
		return nil, err
	}
	// position embeddings of shape (T, n_embd), broadcast over the batch
	x := tok.Reshape(B, T, C)
	for i := 0; i < B*T; i++ {
		pos := m.Wpe.Weight.Row(i % T)
		row := x.Row(i)
		for j := range row {
			row[j] += pos[j]
		}
	}

	for _, block := range m.H {
		x = block.Forward(x)
	}
	x = m.LnF.Forward(x)
	logits := m.LMHead.Forward(x)

	m.ids, m.batch, m.seq = ids, B, T
	return logits, nil
}

func (m *GPT) checkBatch(idx [][]int) (int, int, error) {
	if len(idx) == 0 {
		return 0, 0, fmt.Errorf("%w: empty batch", ErrBadBatch)
	}
	T := len(idx[0])
	if T == 0 {
		return 0, 0, fmt.Errorf("%w: empty sequence", ErrBadBatch)
	}
	for b, row := range idx {
		if len(row) != T {
			return 0, 0, fmt.Errorf("%w: row %d has length %d, want %d", ErrBadBatch, b, len(row), T)
		}
	}
	if T > m.Config.BlockSize {
		return 0, 0, fmt.Errorf("%w: cannot forward sequence of length %d, block size is only %d",
			ErrSequenceTooLong, T, m.Config.BlockSize)
	}
	return len(idx), T, nil
}

// Backward back-propagates the loss of the last ForwardLoss, accumulating
// into every parameter gradient.
func (m *GPT) Backward() error {
	if m.dlogits == nil {
		return ErrNoForward
	}
	dx := m.LMHead.Backward(m.dlogits)
	dx = m.LnF.Backward(dx)
	for i := len(m.H) - 1; i >= 0; i-- {
		dx = m.H[i].Backward(dx)
	}

	m.Wte.Backward(m.ids, dx)
	pos := make([]int, len(m.ids))
	for i := range pos {
		pos[i] = i % m.seq
	}
	m.Wpe.Backward(pos, dx)

	m.dlogits = nil
	return nil
}

// ZeroGrad clears every parameter gradient.
func (m *GPT) ZeroGrad() {
	for _, p := range m.Parameters() {
		p.Grad.Zero()
	}
}

// LastTokenLogits returns the logits of the final position of row b of a
// [B, T, V] logits tensor.
func (m *GPT) LastTokenLogits(logits *Tensor, b int) []float32 {
	seqLen := logits.Shape[1]
	vocabSize := logits.Shape[2]

	out := make([]float32, vocabSize)
	offset := (b*seqLen + seqLen - 1) * vocabSize
	copy(out, logits.Data[offset:offset+vocabSize])
	return out
}

// LogSummary logs the model configuration and parameter count.
func (m *GPT) LogSummary() {
	logger.Log.Info("GPT model",
		"n_layer", m.Config.NLayer,
		"n_head", m.Config.NHead,
		"n_embd", m.Config.NEmbd,
		"vocab_size", m.Config.VocabSize,
		"block_size", m.Config.BlockSize,
		"params_m", float64(m.NumParams())/1e6,
	)
}
