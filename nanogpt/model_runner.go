package nanogpt

// ModelRunner computes next-token logits for a batch of token sequences.
// Implementations may wrap the pure Go transformer or an external runtime.
type ModelRunner interface {
	// NextTokenLogits returns, for each sequence, the logits over the
	// vocabulary for the token that follows it
	NextTokenLogits(seqs [][]int) ([][]float32, error)

	// BlockSize is the longest context the model accepts
	BlockSize() int

	// VocabSize is the length of each logits row
	VocabSize() int

	// Close cleans up resources
	Close() error
}

// MockModelRunner is a deterministic runner for tests: it always puts the
// highest logit on (last token + 1) mod vocab.
type MockModelRunner struct {
	vocab     int
	blockSize int
	Calls     int
}

// NewMockModelRunner creates a new mock model runner
func NewMockModelRunner(vocab, blockSize int) *MockModelRunner {
	return &MockModelRunner{
		vocab:     vocab,
		blockSize: blockSize,
	}
}

// NextTokenLogits generates mock logits
func (m *MockModelRunner) NextTokenLogits(seqs [][]int) ([][]float32, error) {
	m.Calls++
	out := make([][]float32, len(seqs))
	for i, seq := range seqs {
		row := make([]float32, m.vocab)
		row[(seq[len(seq)-1]+1)%m.vocab] = 10
		out[i] = row
	}
	return out, nil
}

func (m *MockModelRunner) BlockSize() int {
	return m.blockSize
}

func (m *MockModelRunner) VocabSize() int {
	return m.vocab
}

// Close cleans up resources
func (m *MockModelRunner) Close() error {
	return nil
}

// Tokenizer is an interface for tokenizing text. Implementations include
// byte-level BPE, Hugging Face tokenizer.json and character vocabularies.
type Tokenizer interface {
	// Encode converts text to token IDs
	Encode(text string) ([]int, error)

	// Decode converts token IDs to text
	Decode(tokenIDs []int) (string, error)

	// EOSTokenID returns the EOS token ID
	EOSTokenID() int

	// VocabSize returns the number of token ids
	VocabSize() int
}

// MockTokenizer is a simple mock tokenizer for tests
type MockTokenizer struct {
	eosTokenID int
	vocab      int
}

// NewMockTokenizer creates a new mock tokenizer
func NewMockTokenizer(eosTokenID, vocab int) *MockTokenizer {
	return &MockTokenizer{
		eosTokenID: eosTokenID,
		vocab:      vocab,
	}
}

// Encode performs mock tokenization
func (t *MockTokenizer) Encode(text string) ([]int, error) {
	// Simple mock: convert each byte to a token
	tokens := make([]int, 0, len(text))
	for _, c := range []byte(text) {
		tokens = append(tokens, int(c)%t.vocab)
	}
	return tokens, nil
}

// Decode performs mock detokenization
func (t *MockTokenizer) Decode(tokenIDs []int) (string, error) {
	// Simple mock: convert tokens to characters
	result := make([]byte, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id != t.eosTokenID {
			result = append(result, byte('a'+id%26))
		}
	}
	return string(result), nil
}

// EOSTokenID returns the EOS token ID
func (t *MockTokenizer) EOSTokenID() int {
	return t.eosTokenID
}

func (t *MockTokenizer) VocabSize() int {
	return t.vocab
}
