package purego

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"nano-gpt-go/internal/logger"
	"nano-gpt-go/nanogpt"
)

// LoadTokenizer picks a tokenizer for a Hugging Face model directory:
// tokenizer.json when present, else vocab.json with merges.txt.
func LoadTokenizer(dir string) (nanogpt.Tokenizer, error) {
	eosToken := eosTokenName(dir)

	if _, err := os.Stat(filepath.Join(dir, "tokenizer.json")); err == nil {
		t, err := NewHFTokenizer(dir, eosToken)
		if err == nil {
			return t, nil
		}
		// Fall back to vocab.json (GPT-2 style)
		logger.Log.Warn("tokenizer.json unusable, trying vocab.json", "dir", dir, "error", err)
	}

	t, err := NewBPETokenizer(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer from %s: %w", dir, err)
	}
	return t, nil
}

// eosTokenName reads eos_token from tokenizer_config.json, defaulting to
// EndOfText
func eosTokenName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json"))
	if err != nil {
		return EndOfText
	}
	var config struct {
		EOSToken interface{} `json:"eos_token"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return EndOfText
	}
	if name := extractTokenString(config.EOSToken); name != "" {
		return name
	}
	return EndOfText
}

// extractTokenString handles both plain strings and AddedToken objects
func extractTokenString(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case map[string]interface{}:
		if content, ok := v["content"].(string); ok {
			return content
		}
	}
	return ""
}
