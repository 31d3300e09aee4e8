package tensor

import "errors"

var (
	// ErrSequenceTooLong is returned when a batch is longer than the block size.
	ErrSequenceTooLong = errors.New("sequence longer than block size")
	// ErrBadBatch is returned for empty or ragged token batches.
	ErrBadBatch = errors.New("invalid token batch")
	// ErrTokenOutOfRange is returned for ids outside the embedding table.
	ErrTokenOutOfRange = errors.New("token id out of range")
	// ErrNoForward is returned by Backward without a preceding ForwardLoss.
	ErrNoForward = errors.New("backward called without a forward pass with targets")

	ErrUnknownModelType = errors.New("unknown pretrained model type")
	ErrKeyMismatch      = errors.New("mismatched keys")
	ErrMissingTensor    = errors.New("tensor not found in checkpoint")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrFingerprint      = errors.New("checkpoint fingerprint mismatch")
)
