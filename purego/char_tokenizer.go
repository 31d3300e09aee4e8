package purego

import (
	"fmt"
	"slices"
	"strings"
)

// CharTokenizer maps each distinct character of a corpus to an id, in
// sorted order. It has no dedicated EOS token: id 0 plays that role, so
// unconditional generation starts from the smallest character.
type CharTokenizer struct {
	chars []rune
	index map[rune]int
}

// NewCharTokenizer builds the vocabulary from text
func NewCharTokenizer(text string) (*CharTokenizer, error) {
	seen := make(map[rune]bool)
	for _, r := range text {
		seen[r] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("cannot build a character vocabulary from empty text")
	}

	chars := make([]rune, 0, len(seen))
	for r := range seen {
		chars = append(chars, r)
	}
	slices.Sort(chars)

	index := make(map[rune]int, len(chars))
	for i, r := range chars {
		index[r] = i
	}
	return &CharTokenizer{chars: chars, index: index}, nil
}

// Encode converts text to token IDs
func (t *CharTokenizer) Encode(text string) ([]int, error) {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		id, ok := t.index[r]
		if !ok {
			return nil, fmt.Errorf("character %q is not in the vocabulary", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode converts token IDs to text
func (t *CharTokenizer) Decode(tokenIDs []int) (string, error) {
	var sb strings.Builder
	for _, id := range tokenIDs {
		if id < 0 || id >= len(t.chars) {
			return "", fmt.Errorf("token id %d is out of range [0, %d)", id, len(t.chars))
		}
		sb.WriteRune(t.chars[id])
	}
	return sb.String(), nil
}

// EOSTokenID returns 0
func (t *CharTokenizer) EOSTokenID() int {
	return 0
}

// VocabSize returns the number of distinct characters
func (t *CharTokenizer) VocabSize() int {
	return len(t.chars)
}
