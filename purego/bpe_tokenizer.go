package purego

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"nano-gpt-go/internal/logger"
)

// EndOfText is the GPT-2 end of text token.
const EndOfText = "<|endoftext|>"

// BPETokenizer implements GPT-2 byte-level BPE tokenization
type BPETokenizer struct {
	encoder     map[string]int
	decoder     map[int]string
	bpeRanks    map[string]int // Merge rules priority
	byteEncoder map[byte]rune
	byteDecoder map[rune]byte
	pattern     *regexp.Regexp
	eosID       int
	cache       map[string][]string
}

// NewBPETokenizer loads vocab.json and merges.txt from tokenizerDir
func NewBPETokenizer(tokenizerDir string) (*BPETokenizer, error) {
	data, err := os.ReadFile(filepath.Join(tokenizerDir, "vocab.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	encoder := make(map[string]int)
	if err := json.Unmarshal(data, &encoder); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}

	merges, err := loadMerges(filepath.Join(tokenizerDir, "merges.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to load merges: %w", err)
	}

	t, err := NewBPETokenizerFromVocab(encoder, merges)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("loaded BPE tokenizer", "dir", tokenizerDir, "vocab", len(t.encoder), "merges", len(t.bpeRanks))
	return t, nil
}

// NewBPETokenizerFromVocab builds a tokenizer from an in-memory vocabulary
// and merge list. Each merge is two symbols separated by a space, highest
// priority first. The vocabulary must contain EndOfText.
func NewBPETokenizerFromVocab(encoder map[string]int, merges []string) (*BPETokenizer, error) {
	eos, ok := encoder[EndOfText]
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", EndOfText)
	}

	t := &BPETokenizer{
		encoder:     make(map[string]int, len(encoder)),
		decoder:     make(map[int]string, len(encoder)),
		bpeRanks:    make(map[string]int, len(merges)),
		byteEncoder: buildByteEncoder(),
		byteDecoder: make(map[rune]byte, 256),
		eosID:       eos,
		cache:       make(map[string][]string),
	}
	for b, r := range t.byteEncoder {
		t.byteDecoder[r] = b
	}
	for token, id := range encoder {
		t.encoder[token] = id
		t.decoder[id] = token
	}
	for rank, m := range merges {
		if len(strings.Fields(m)) != 2 {
			return nil, fmt.Errorf("invalid merge %q at rank %d", m, rank)
		}
		t.bpeRanks[m] = rank
	}

	// GPT-2 pre-tokenization pattern without the \s+(?!\S) lookahead, see splitWords
	t.pattern = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)
	return t, nil
}

// buildByteEncoder creates GPT-2's byte-to-unicode mapping
func buildByteEncoder() map[byte]rune {
	encoder := make(map[byte]rune)

	// Visible ASCII
	for b := byte('!'); b <= byte('~'); b++ {
		encoder[b] = rune(b)
	}
	for b := int('¡'); b <= int('¬'); b++ {
		encoder[byte(b)] = rune(b)
	}
	for b := int('®'); b <= int('ÿ'); b++ {
		encoder[byte(b)] = rune(b)
	}

	// Map remaining bytes to special Unicode range
	n := 0
	for b := 0; b < 256; b++ {
		if _, ok := encoder[byte(b)]; !ok {
			encoder[byte(b)] = rune(256 + n)
			n++
		}
	}

	return encoder
}

// loadMerges reads merge rules, skipping the #version header
func loadMerges(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var merges []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		merges = append(merges, line)
	}
	return merges, scanner.Err()
}

// Encode converts text to token IDs. Literal EndOfText markers in the text
// become the EOS id.
func (t *BPETokenizer) Encode(text string) ([]int, error) {
	var tokenIDs []int
	for i, part := range strings.Split(text, EndOfText) {
		if i > 0 {
			tokenIDs = append(tokenIDs, t.eosID)
		}
		for _, piece := range t.splitWords(part) {
			var sb strings.Builder
			for _, b := range []byte(piece) {
				sb.WriteRune(t.byteEncoder[b])
			}
			for _, sym := range t.bpe(sb.String()) {
				id, ok := t.encoder[sym]
				if !ok {
					return nil, fmt.Errorf("symbol %q is not in the vocabulary", sym)
				}
				tokenIDs = append(tokenIDs, id)
			}
		}
	}
	return tokenIDs, nil
}

// splitWords pre-tokenizes text the way GPT-2 does. GPT-2 matches
// \s+(?!\S) before \s+, so a whitespace run followed by more text gives up
// its last character, which then starts the next word.
func (t *BPETokenizer) splitWords(text string) []string {
	var words []string
	for pos := 0; pos < len(text); {
		loc := t.pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		word := text[start:end]
		if end < len(text) && strings.TrimSpace(word) == "" {
			if _, size := utf8.DecodeLastRuneInString(word); size < len(word) {
				end -= size
				word = text[start:end]
			}
		}
		words = append(words, word)
		pos = end
	}
	return words
}

// bpe applies the merge rules to one pre-tokenized word
func (t *BPETokenizer) bpe(token string) []string {
	if cached, ok := t.cache[token]; ok {
		return cached
	}

	var word []string
	for _, r := range token {
		word = append(word, string(r))
	}

	for len(word) > 1 {
		// Find pair with lowest rank (highest priority merge)
		minRank := -1
		var first, second string
		for i := 0; i < len(word)-1; i++ {
			rank, ok := t.bpeRanks[word[i]+" "+word[i+1]]
			if ok && (minRank < 0 || rank < minRank) {
				minRank = rank
				first, second = word[i], word[i+1]
			}
		}
		if minRank < 0 {
			break
		}

		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	t.cache[token] = word
	return word
}

// Decode converts token IDs to text. The EOS token decodes to EndOfText.
func (t *BPETokenizer) Decode(tokenIDs []int) (string, error) {
	var bytes []byte
	for _, id := range tokenIDs {
		token, ok := t.decoder[id]
		if !ok {
			return "", fmt.Errorf("token id %d is not in the vocabulary", id)
		}
		if id == t.eosID {
			bytes = append(bytes, token...)
			continue
		}
		for _, r := range token {
			if b, ok := t.byteDecoder[r]; ok {
				bytes = append(bytes, b)
			}
		}
	}
	return string(bytes), nil
}

// EOSTokenID returns the EOS token ID
func (t *BPETokenizer) EOSTokenID() int {
	return t.eosID
}

// VocabSize returns the number of token ids
func (t *BPETokenizer) VocabSize() int {
	return len(t.encoder)
}
