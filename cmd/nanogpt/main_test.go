package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("nanogpt %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestTrainThenGenerate(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(corpus, []byte(strings.Repeat("abcd efgh\n", 10)), 0o644); err != nil {
		t.Fatal(err)
	}
	ckpt := filepath.Join(dir, "char.safetensors")

	out := execute(t, "train",
		"--corpus", corpus, "--max-chars", "0",
		"--steps", "3", "--batch", "2", "--seq", "8",
		"--n-layer", "1", "--n-head", "2", "--n-embd", "8",
		"--save", ckpt,
	)
	if !strings.Contains(out, "trained 3 steps") {
		t.Errorf("unexpected train output %q", out)
	}
	if _, err := os.Stat(ckpt); err != nil {
		t.Fatalf("Expected checkpoint to be written: %v", err)
	}

	out = execute(t, "generate",
		"--checkpoint", ckpt, "--corpus", corpus, "--max-chars", "0",
		"--prompt", "ab", "--max-length", "12", "--num", "2",
	)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n> ")
	if !strings.HasPrefix(out, "> ab") || len(lines) != 2 {
		t.Errorf("Expected 2 rows starting with the prompt, got %q", out)
	}
}

func TestLoadRunnerFlags(t *testing.T) {
	if _, err := loadRunner("gpt2", "", ""); err == nil {
		t.Errorf("Expected error without weights or checkpoint")
	}
	if _, err := loadRunner("gpt2", "w", "c"); err == nil {
		t.Errorf("Expected error with both weights and checkpoint")
	}
}
