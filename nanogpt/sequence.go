package nanogpt

import "sync/atomic"

// SequenceStatus represents the status of a sequence
type SequenceStatus int

const (
	StatusRunning SequenceStatus = iota
	StatusFinished
)

// Sequence is one row being generated
type Sequence struct {
	SeqID           int64
	Status          SequenceStatus
	TokenIDs        []int
	LastToken       int
	NumPromptTokens int
}

var seqCounter int64 = 0

// NewSequence creates a running sequence from a non-empty prompt
func NewSequence(tokenIDs []int) *Sequence {
	seqID := atomic.AddInt64(&seqCounter, 1) - 1

	// Make a copy of token IDs
	tokens := make([]int, len(tokenIDs))
	copy(tokens, tokenIDs)

	return &Sequence{
		SeqID:           seqID,
		Status:          StatusRunning,
		TokenIDs:        tokens,
		LastToken:       tokenIDs[len(tokenIDs)-1],
		NumPromptTokens: len(tokenIDs),
	}
}

// Len returns the number of tokens in the sequence
func (s *Sequence) Len() int {
	return len(s.TokenIDs)
}

// IsFinished returns true if the sequence has finished generating
func (s *Sequence) IsFinished() bool {
	return s.Status == StatusFinished
}

// NumCompletionTokens returns the number of completion tokens
func (s *Sequence) NumCompletionTokens() int {
	return s.Len() - s.NumPromptTokens
}

// CompletionTokenIDs returns the completion token IDs
func (s *Sequence) CompletionTokenIDs() []int {
	return s.TokenIDs[s.NumPromptTokens:]
}

// Context returns the last n tokens, or all of them when there are fewer.
func (s *Sequence) Context(n int) []int {
	if len(s.TokenIDs) <= n {
		return s.TokenIDs
	}
	return s.TokenIDs[len(s.TokenIDs)-n:]
}

// AppendToken appends a token to the sequence
func (s *Sequence) AppendToken(tokenID int) {
	s.TokenIDs = append(s.TokenIDs, tokenID)
	s.LastToken = tokenID
}
