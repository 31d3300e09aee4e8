package purego

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"nano-gpt-go/internal/logger"
)

// HFTokenizer wraps a Hugging Face tokenizer.json
type HFTokenizer struct {
	tokenizer *tk.Tokenizer
	eosID     int
	vocabSize int
}

// NewHFTokenizer loads path, which is either a tokenizer.json file or a
// directory containing one. eosToken names the EOS token in the vocabulary.
func NewHFTokenizer(path, eosToken string) (*HFTokenizer, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "tokenizer.json")
	}
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	vocab := t.GetVocab(true)
	eos, ok := vocab[eosToken]
	if !ok {
		return nil, fmt.Errorf("tokenizer %s has no %s token", path, eosToken)
	}

	logger.Log.Info("loaded HF tokenizer", "path", path, "vocab", len(vocab), "eos", eos)
	return &HFTokenizer{
		tokenizer: t,
		eosID:     eos,
		vocabSize: len(vocab),
	}, nil
}

// Encode converts text to token IDs without adding special tokens
func (t *HFTokenizer) Encode(text string) ([]int, error) {
	enc, err := t.tokenizer.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(enc.Ids))
	for i, v := range enc.Ids {
		out[i] = int(v)
	}
	return out, nil
}

// Decode converts token IDs to text, keeping special tokens
func (t *HFTokenizer) Decode(tokenIDs []int) (string, error) {
	for _, id := range tokenIDs {
		if id < 0 || id >= t.vocabSize {
			return "", fmt.Errorf("token id %d is out of range [0, %d)", id, t.vocabSize)
		}
	}
	return t.tokenizer.Decode(tokenIDs, false), nil
}

// EOSTokenID returns the EOS token ID
func (t *HFTokenizer) EOSTokenID() int {
	return t.eosID
}

// VocabSize returns the vocabulary size
func (t *HFTokenizer) VocabSize() int {
	return t.vocabSize
}
