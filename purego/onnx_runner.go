package purego

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"

	"nano-gpt-go/internal/logger"
	"nano-gpt-go/purego/tensor"
)

// ONNXReference runs an exported GPT-2 graph (input_ids -> logits) through
// ONNX Runtime. It serves as an independent reference for the pure Go
// forward pass and also satisfies nanogpt.ModelRunner.
type ONNXReference struct {
	modelPath   string
	vocabSize   int
	blockSize   int
	threads     int
	initialized bool
}

// NewONNXReference initializes ONNX Runtime. libPath is the onnxruntime
// shared library; empty uses the library's default lookup.
func NewONNXReference(modelPath, libPath string, cfg tensor.GPTConfig) (*ONNXReference, error) {
	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	logger.Log.Info("ONNX runtime initialized", "model", modelPath)
	return &ONNXReference{
		modelPath:   modelPath,
		vocabSize:   cfg.VocabSize,
		blockSize:   cfg.BlockSize,
		threads:     4,
		initialized: true,
	}, nil
}

// Logits returns the [len(ids), vocab] logits of one sequence, row major
func (m *ONNXReference) Logits(ids []int) ([]float32, error) {
	if !m.initialized {
		return nil, fmt.Errorf("ONNX reference not initialized")
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty sequence", tensor.ErrBadBatch)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if err := options.SetIntraOpNumThreads(m.threads); err != nil {
		return nil, fmt.Errorf("failed to set threads: %w", err)
	}

	inputData := make([]int64, len(ids))
	for j, id := range ids {
		inputData[j] = int64(id)
	}
	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(ids))), inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputData := make([]float32, len(ids)*m.vocabSize)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(ids)), int64(m.vocabSize)), outputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewAdvancedSession(
		m.modelPath,
		[]string{"input_ids"},
		[]string{"logits"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Destroy()

	// Run inference (updates outputTensor in-place)
	if err := session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, len(outputData))
	copy(out, outputTensor.GetData())
	return out, nil
}

// NextTokenLogits runs each sequence through the graph and keeps the last
// position
func (m *ONNXReference) NextTokenLogits(seqs [][]int) ([][]float32, error) {
	out := make([][]float32, len(seqs))
	for i, seq := range seqs {
		logits, err := m.Logits(seq)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = logits[(len(seq)-1)*m.vocabSize:]
	}
	return out, nil
}

// BlockSize returns the context length the graph was exported for
func (m *ONNXReference) BlockSize() int {
	return m.blockSize
}

// VocabSize returns the vocabulary size
func (m *ONNXReference) VocabSize() int {
	return m.vocabSize
}

// Close cleans up resources
func (m *ONNXReference) Close() error {
	m.initialized = false
	return nil
}

// LogitsComparison summarizes the difference between two logits tensors
type LogitsComparison struct {
	MaxAbsDiff  float64
	MeanAbsDiff float64
	ArgmaxAgree int // positions whose argmax matches
	Positions   int
}

// CompareLogits compares row-major [positions, vocab] logits
func CompareLogits(got, want []float32, vocab int) (LogitsComparison, error) {
	if len(got) != len(want) {
		return LogitsComparison{}, fmt.Errorf("%w: %d logits vs %d", tensor.ErrShapeMismatch, len(got), len(want))
	}
	if vocab <= 0 || len(got)%vocab != 0 {
		return LogitsComparison{}, fmt.Errorf("%w: %d logits do not split into rows of %d", tensor.ErrShapeMismatch, len(got), vocab)
	}

	var c LogitsComparison
	var sum float64
	for i := range got {
		d := math.Abs(float64(got[i]) - float64(want[i]))
		sum += d
		if d > c.MaxAbsDiff {
			c.MaxAbsDiff = d
		}
	}
	if len(got) > 0 {
		c.MeanAbsDiff = sum / float64(len(got))
	}

	c.Positions = len(got) / vocab
	for p := 0; p < c.Positions; p++ {
		lo, hi := p*vocab, (p+1)*vocab
		if tensor.Argmax(got[lo:hi]) == tensor.Argmax(want[lo:hi]) {
			c.ArgmaxAgree++
		}
	}
	return c, nil
}

// VerifyModel runs ids through model and ref and compares the logits
func VerifyModel(model *tensor.GPT, ref *ONNXReference, ids []int) (LogitsComparison, error) {
	logits, err := model.Forward([][]int{ids})
	if err != nil {
		return LogitsComparison{}, err
	}
	want, err := ref.Logits(ids)
	if err != nil {
		return LogitsComparison{}, err
	}
	c, err := CompareLogits(logits.Data, want, model.Config.VocabSize)
	if err != nil {
		return LogitsComparison{}, err
	}
	logger.Log.Info("compared logits against ONNX",
		"positions", c.Positions,
		"max_abs_diff", c.MaxAbsDiff,
		"mean_abs_diff", c.MeanAbsDiff,
		"argmax_agree", c.ArgmaxAgree,
	)
	return c, nil
}
