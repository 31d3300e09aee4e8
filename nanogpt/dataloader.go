package nanogpt

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"unicode/utf8"
)

// ErrCorpusTooSmall is returned when a token stream cannot fill one batch.
var ErrCorpusTooSmall = errors.New("corpus too small for one batch")

// DataLoader cuts a token stream into consecutive (B, T) batches of inputs
// and next-token targets.
type DataLoader struct {
	tokens []int
	B, T   int
	pos    int
}

// NewDataLoader needs at least B*T+1 tokens.
func NewDataLoader(tokens []int, B, T int) (*DataLoader, error) {
	if B <= 0 || T <= 0 {
		return nil, fmt.Errorf("invalid batch shape %dx%d", B, T)
	}
	if len(tokens) < B*T+1 {
		return nil, fmt.Errorf("%w: %d tokens, need %d", ErrCorpusTooSmall, len(tokens), B*T+1)
	}
	return &DataLoader{tokens: tokens, B: B, T: T}, nil
}

// NextBatch returns x = buf[:-1] and y = buf[1:] viewed as (B, T), where
// buf is the next B*T+1 tokens. Rows are copies, so callers may modify
// them. It wraps to the start when the following batch would run past the
// end.
func (d *DataLoader) NextBatch() (x, y [][]int) {
	n := d.B * d.T
	buf := d.tokens[d.pos : d.pos+n+1]
	x = make([][]int, d.B)
	y = make([][]int, d.B)
	for b := 0; b < d.B; b++ {
		x[b] = slices.Clone(buf[b*d.T : (b+1)*d.T])
		y[b] = slices.Clone(buf[b*d.T+1 : (b+1)*d.T+1])
	}

	d.pos += n
	if d.pos+n+1 > len(d.tokens) {
		d.pos = 0
	}
	return x, y
}

// Reset rewinds to the first batch.
func (d *DataLoader) Reset() {
	d.pos = 0
}

// NumBatches is the number of distinct batches before wrapping.
func (d *DataLoader) NumBatches() int {
	return (len(d.tokens) - 1) / (d.B * d.T)
}

// LoadCorpus reads a text file and keeps its first maxChars characters
// (all of it when maxChars is 0).
func LoadCorpus(path string, maxChars int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read corpus: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("corpus %s is not valid UTF-8", path)
	}
	text := string(data)
	if maxChars <= 0 {
		return text, nil
	}

	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i], nil
		}
		n++
	}
	return text, nil
}
