package tensor

import (
	"fmt"
	"sort"
)

// GPTConfig holds the GPT-2 hyperparameters
type GPTConfig struct {
	BlockSize int `json:"block_size"` // maximum context length
	VocabSize int `json:"vocab_size"`
	NLayer    int `json:"n_layer"`
	NHead     int `json:"n_head"`
	NEmbd     int `json:"n_embd"`
}

// DefaultConfig is GPT-2 small (124M).
func DefaultConfig() GPTConfig {
	return GPTConfig{
		BlockSize: 1024,
		VocabSize: 50257,
		NLayer:    12,
		NHead:     12,
		NEmbd:     768,
	}
}

// CharConfig is the small character-level setting (65 symbols, 256 context).
func CharConfig() GPTConfig {
	return GPTConfig{
		BlockSize: 256,
		VocabSize: 65,
		NLayer:    6,
		NHead:     6,
		NEmbd:     384,
	}
}

// HeadSize is the per-head channel count.
func (c GPTConfig) HeadSize() int {
	return c.NEmbd / c.NHead
}

func (c GPTConfig) Validate() error {
	if c.BlockSize <= 0 {
		return fmt.Errorf("invalid block_size: %d (must be positive)", c.BlockSize)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("invalid vocab_size: %d (must be positive)", c.VocabSize)
	}
	if c.NLayer <= 0 {
		return fmt.Errorf("invalid n_layer: %d (must be positive)", c.NLayer)
	}
	if c.NHead <= 0 {
		return fmt.Errorf("invalid n_head: %d (must be positive)", c.NHead)
	}
	if c.NEmbd <= 0 {
		return fmt.Errorf("invalid n_embd: %d (must be positive)", c.NEmbd)
	}
	if c.NEmbd%c.NHead != 0 {
		return fmt.Errorf("n_embd %d must be divisible by n_head %d", c.NEmbd, c.NHead)
	}
	return nil
}

// n_layer, n_head and n_embd per published GPT-2 size
var pretrainedConfigs = map[string]GPTConfig{
	"gpt2":        {NLayer: 12, NHead: 12, NEmbd: 768},  // 124M params
	"gpt2-medium": {NLayer: 24, NHead: 16, NEmbd: 1024}, // 350M params
	"gpt2-large":  {NLayer: 36, NHead: 20, NEmbd: 1280}, // 774M params
	"gpt2-xl":     {NLayer: 48, NHead: 25, NEmbd: 1600}, // 1558M params
}

// PretrainedConfig returns the configuration of a published GPT-2 checkpoint.
func PretrainedConfig(modelType string) (GPTConfig, error) {
	cfg, ok := pretrainedConfigs[modelType]
	if !ok {
		return GPTConfig{}, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownModelType, modelType, PretrainedModelTypes())
	}
	// always 50257 and 1024 for GPT-2 checkpoints
	cfg.VocabSize = 50257
	cfg.BlockSize = 1024
	return cfg, nil
}

// PretrainedModelTypes lists the accepted model types in sorted order.
func PretrainedModelTypes() []string {
	types := make([]string, 0, len(pretrainedConfigs))
	for k := range pretrainedConfigs {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}
