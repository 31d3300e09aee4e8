package nanogpt

import (
	"fmt"
	"os"

	"nano-gpt-go/purego/tensor"
)

// Config holds the configuration for a training run
type Config struct {
	Corpus         string
	MaxChars       int // characters of the corpus to keep, 0 keeps everything
	BatchSize      int
	SeqLen         int
	Steps          int
	LearningRate   float32
	WeightDecay    float32
	GradClip       float64 // 0 disables clipping
	Seed           uint64
	LogEvery       int
	SingleBatch    bool // train every step on the first batch
	CheckpointPath string
	ShowProgress   bool
	Model          tensor.GPTConfig
}

// ConfigOption is a functional option for Config
type ConfigOption func(*Config)

// NewConfig creates a new Config with default values
func NewConfig(corpus string, opts ...ConfigOption) (*Config, error) {
	c := &Config{
		Corpus:       corpus,
		MaxChars:     1000,
		BatchSize:    4,
		SeqLen:       32,
		Steps:        50,
		LearningRate: 3e-4,
		WeightDecay:  0.01,
		GradClip:     0,
		Seed:         1337,
		LogEvery:     1,
		SingleBatch:  true,
		Model:        tensor.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if _, err := os.Stat(c.Corpus); os.IsNotExist(err) {
		return fmt.Errorf("corpus file does not exist: %s", c.Corpus)
	}
	if c.MaxChars < 0 {
		return fmt.Errorf("max_chars must be >= 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.SeqLen <= 0 {
		return fmt.Errorf("seq_len must be positive")
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive")
	}
	if c.WeightDecay < 0 {
		return fmt.Errorf("weight_decay must be >= 0")
	}
	if c.LogEvery <= 0 {
		return fmt.Errorf("log_every must be positive")
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if c.SeqLen > c.Model.BlockSize {
		return fmt.Errorf("seq_len %d exceeds block_size %d", c.SeqLen, c.Model.BlockSize)
	}
	return nil
}

// WithMaxChars sets how many characters of the corpus are used
func WithMaxChars(n int) ConfigOption {
	return func(c *Config) {
		c.MaxChars = n
	}
}

// WithBatchSize sets the number of sequences per batch
func WithBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithSeqLen sets the sequence length of a batch
func WithSeqLen(n int) ConfigOption {
	return func(c *Config) {
		c.SeqLen = n
	}
}

// WithSteps sets the number of optimizer steps
func WithSteps(n int) ConfigOption {
	return func(c *Config) {
		c.Steps = n
	}
}

// WithLearningRate sets the AdamW learning rate
func WithLearningRate(lr float32) ConfigOption {
	return func(c *Config) {
		c.LearningRate = lr
	}
}

// WithWeightDecay sets the AdamW weight decay
func WithWeightDecay(wd float32) ConfigOption {
	return func(c *Config) {
		c.WeightDecay = wd
	}
}

// WithGradClip sets the maximum global gradient norm
func WithGradClip(maxNorm float64) ConfigOption {
	return func(c *Config) {
		c.GradClip = maxNorm
	}
}

// WithSeed sets the parameter initialization seed
func WithSeed(seed uint64) ConfigOption {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithLogEvery sets the step logging interval
func WithLogEvery(n int) ConfigOption {
	return func(c *Config) {
		c.LogEvery = n
	}
}

// WithSingleBatch selects training on the first batch only (true) or
// iterating over the corpus (false)
func WithSingleBatch(b bool) ConfigOption {
	return func(c *Config) {
		c.SingleBatch = b
	}
}

// WithCheckpointPath saves the trained model to path
func WithCheckpointPath(path string) ConfigOption {
	return func(c *Config) {
		c.CheckpointPath = path
	}
}

// WithProgress enables the progress bar
func WithProgress(b bool) ConfigOption {
	return func(c *Config) {
		c.ShowProgress = b
	}
}

// WithModelConfig sets the model hyperparameters
func WithModelConfig(cfg tensor.GPTConfig) ConfigOption {
	return func(c *Config) {
		c.Model = cfg
	}
}
