package nanogpt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSequenceCreation(t *testing.T) {
	tokenIDs := []int{1, 2, 3, 4, 5}
	seq := NewSequence(tokenIDs)

	if seq.Len() != 5 {
		t.Errorf("Expected length 5, got %d", seq.Len())
	}

	if seq.NumPromptTokens != 5 {
		t.Errorf("Expected 5 prompt tokens, got %d", seq.NumPromptTokens)
	}

	if seq.NumCompletionTokens() != 0 {
		t.Errorf("Expected 0 completion tokens, got %d", seq.NumCompletionTokens())
	}

	if seq.Status != StatusRunning {
		t.Errorf("Expected status RUNNING, got %v", seq.Status)
	}

	tokenIDs[0] = 99
	if seq.TokenIDs[0] != 1 {
		t.Errorf("Expected sequence to copy its prompt")
	}
}

func TestSequenceAppendToken(t *testing.T) {
	seq := NewSequence([]int{1, 2, 3})

	seq.AppendToken(4)

	if seq.Len() != 4 {
		t.Errorf("Expected length 4, got %d", seq.Len())
	}

	if seq.LastToken != 4 {
		t.Errorf("Expected last token 4, got %d", seq.LastToken)
	}

	if seq.NumCompletionTokens() != 1 {
		t.Errorf("Expected 1 completion token, got %d", seq.NumCompletionTokens())
	}

	if diff := cmp.Diff([]int{4}, seq.CompletionTokenIDs()); diff != "" {
		t.Errorf("completion mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceContext(t *testing.T) {
	seq := NewSequence([]int{1, 2, 3, 4, 5, 6})

	if diff := cmp.Diff([]int{4, 5, 6}, seq.Context(3)); diff != "" {
		t.Errorf("cropped context mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5, 6}, seq.Context(10)); diff != "" {
		t.Errorf("full context mismatch (-want +got):\n%s", diff)
	}
}

func TestSamplingParams(t *testing.T) {
	sp, err := NewSamplingParams(
		WithTemperature(0.7),
		WithMaxLength(128),
		WithStopAtEOS(true),
		WithSamplingSeed(7),
	)
	if err != nil {
		t.Fatalf("NewSamplingParams failed: %v", err)
	}

	if sp.Temperature != 0.7 {
		t.Errorf("Expected temperature 0.7, got %f", sp.Temperature)
	}

	if sp.MaxLength != 128 {
		t.Errorf("Expected max length 128, got %d", sp.MaxLength)
	}

	if !sp.StopAtEOS {
		t.Errorf("Expected stop at EOS to be true")
	}

	if sp.Seed != 7 {
		t.Errorf("Expected seed 7, got %d", sp.Seed)
	}
}

func TestSamplingParamsDefaults(t *testing.T) {
	sp, err := NewSamplingParams()
	if err != nil {
		t.Fatalf("NewSamplingParams failed: %v", err)
	}
	want := &SamplingParams{
		MaxLength:          30,
		NumReturnSequences: 5,
		TopK:               50,
		TopP:               1,
		Temperature:        1,
		Seed:               42,
	}
	if diff := cmp.Diff(want, sp); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestSamplingParamsValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  SamplingOption
	}{
		{"zero max length", WithMaxLength(0)},
		{"zero sequences", WithNumReturnSequences(0)},
		{"negative top-k", WithTopK(-1)},
		{"zero top-p", WithTopP(0)},
		{"top-p above one", WithTopP(1.5)},
		{"negative temperature", WithTemperature(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSamplingParams(tt.opt); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}
