package main

import (
	"fmt"
	"os"
	"path/filepath"

	"nano-gpt-go/nanogpt"
	"nano-gpt-go/purego"
)

// loadRunner imports pretrained weights or loads a checkpoint; exactly one of
// weights and checkpoint must be set
func loadRunner(modelType, weights, checkpoint string) (*purego.NativeModelRunner, error) {
	switch {
	case weights != "" && checkpoint != "":
		return nil, fmt.Errorf("--weights and --checkpoint are mutually exclusive")
	case checkpoint != "":
		return purego.NewCheckpointRunner(checkpoint)
	case weights != "":
		return purego.NewPretrainedRunner(modelType, weights)
	default:
		return nil, fmt.Errorf("one of --weights or --checkpoint is required")
	}
}

// loadTokenizer builds a character tokenizer from corpus when given,
// otherwise loads the tokenizer files in dir
func loadTokenizer(dir, corpus string, maxChars int) (nanogpt.Tokenizer, error) {
	if corpus != "" {
		text, err := nanogpt.LoadCorpus(corpus, maxChars)
		if err != nil {
			return nil, err
		}
		tok, err := purego.NewCharTokenizer(text)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
	if dir == "" {
		return nil, fmt.Errorf("a tokenizer directory or a corpus is required")
	}
	return purego.LoadTokenizer(dir)
}

// weightsDir returns the directory holding weights, which may name a file
func weightsDir(weights string) string {
	if weights == "" {
		return ""
	}
	if fi, err := os.Stat(weights); err == nil && !fi.IsDir() {
		return filepath.Dir(weights)
	}
	return weights
}
