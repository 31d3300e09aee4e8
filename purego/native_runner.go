package purego

import (
	"fmt"

	"nano-gpt-go/purego/tensor"
)

// NativeModelRunner implements nanogpt.ModelRunner using the pure Go
// transformer
type NativeModelRunner struct {
	model       *tensor.GPT
	initialized bool
}

// NewNativeModelRunner wraps an already built or imported model
func NewNativeModelRunner(model *tensor.GPT) *NativeModelRunner {
	return &NativeModelRunner{
		model:       model,
		initialized: true,
	}
}

// NewPretrainedRunner imports GPT-2 weights of modelType from path
func NewPretrainedRunner(modelType, path string) (*NativeModelRunner, error) {
	model, err := tensor.FromPretrained(modelType, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return NewNativeModelRunner(model), nil
}

// NewCheckpointRunner loads a checkpoint written by tensor.SaveCheckpoint
func NewCheckpointRunner(path string) (*NativeModelRunner, error) {
	model, err := tensor.LoadCheckpoint(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return NewNativeModelRunner(model), nil
}

// Model returns the wrapped model
func (m *NativeModelRunner) Model() *tensor.GPT {
	return m.model
}

// NextTokenLogits runs the forward pass. Sequences of equal length share
// one batched forward; otherwise each sequence runs on its own.
func (m *NativeModelRunner) NextTokenLogits(seqs [][]int) ([][]float32, error) {
	if !m.initialized {
		return nil, fmt.Errorf("model runner not initialized")
	}
	if len(seqs) == 0 {
		return nil, fmt.Errorf("no sequences to process")
	}

	if sameLength(seqs) {
		logits, err := m.model.Forward(seqs)
		if err != nil {
			return nil, err
		}
		out := make([][]float32, len(seqs))
		for b := range seqs {
			out[b] = m.model.LastTokenLogits(logits, b)
		}
		return out, nil
	}

	out := make([][]float32, len(seqs))
	for i, seq := range seqs {
		logits, err := m.model.Forward([][]int{seq})
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = m.model.LastTokenLogits(logits, 0)
	}
	return out, nil
}

func sameLength(seqs [][]int) bool {
	for _, s := range seqs[1:] {
		if len(s) != len(seqs[0]) {
			return false
		}
	}
	return true
}

// BlockSize returns the model's context length
func (m *NativeModelRunner) BlockSize() int {
	return m.model.Config.BlockSize
}

// VocabSize returns the vocabulary size
func (m *NativeModelRunner) VocabSize() int {
	return m.model.Config.VocabSize
}

// Close cleans up resources
func (m *NativeModelRunner) Close() error {
	m.initialized = false
	return nil
}
