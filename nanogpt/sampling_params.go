package nanogpt

import (
	"fmt"

	"nano-gpt-go/purego/tensor"
)

// SamplingParams holds the sampling parameters for generation
type SamplingParams struct {
	MaxLength          int // total row length, prompt included
	NumReturnSequences int
	TopK               int
	TopP               float32
	Temperature        float32
	Seed               uint64
	StopAtEOS          bool
}

// SamplingOption is a functional option for SamplingParams
type SamplingOption func(*SamplingParams)

// NewSamplingParams creates a new SamplingParams with default values
func NewSamplingParams(opts ...SamplingOption) (*SamplingParams, error) {
	sp := &SamplingParams{
		MaxLength:          30,
		NumReturnSequences: 5,
		TopK:               50,
		TopP:               1.0,
		Temperature:        1.0,
		Seed:               42,
		StopAtEOS:          false,
	}

	for _, opt := range opts {
		opt(sp)
	}

	if err := sp.validate(); err != nil {
		return nil, err
	}
	return sp, nil
}

// validate checks if the sampling parameters are valid
func (sp *SamplingParams) validate() error {
	if sp.MaxLength <= 0 {
		return fmt.Errorf("max_length must be positive")
	}
	if sp.NumReturnSequences <= 0 {
		return fmt.Errorf("num_return_sequences must be positive")
	}
	if sp.TopK < 0 {
		return fmt.Errorf("top_k must be >= 0")
	}
	if sp.TopP <= 0 || sp.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1]")
	}
	if sp.Temperature < 0 {
		return fmt.Errorf("temperature must be >= 0")
	}
	return nil
}

func (sp *SamplingParams) tensorParams() *tensor.SamplingParams {
	return &tensor.SamplingParams{
		Temperature: sp.Temperature,
		TopP:        sp.TopP,
		TopK:        sp.TopK,
	}
}

// WithMaxLength sets the length at which generation stops
func WithMaxLength(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.MaxLength = n
	}
}

// WithNumReturnSequences sets how many rows are sampled from the prompt
func WithNumReturnSequences(n int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.NumReturnSequences = n
	}
}

// WithTopK restricts sampling to the k most likely tokens, 0 disables
func WithTopK(k int) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopK = k
	}
}

// WithTopP sets the nucleus sampling threshold
func WithTopP(p float32) SamplingOption {
	return func(sp *SamplingParams) {
		sp.TopP = p
	}
}

// WithTemperature sets the sampling temperature, 0 is greedy
func WithTemperature(t float32) SamplingOption {
	return func(sp *SamplingParams) {
		sp.Temperature = t
	}
}

// WithSamplingSeed sets the sampling seed
func WithSamplingSeed(seed uint64) SamplingOption {
	return func(sp *SamplingParams) {
		sp.Seed = seed
	}
}

// WithStopAtEOS finishes a row when it samples the EOS token
func WithStopAtEOS(b bool) SamplingOption {
	return func(sp *SamplingParams) {
		sp.StopAtEOS = b
	}
}
