package nanogpt

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"

	"nano-gpt-go/internal/logger"
	"nano-gpt-go/internal/metrics"
	"nano-gpt-go/purego/tensor"
)

// Trainer fits a model to a token stream with AdamW.
type Trainer struct {
	config    *Config
	model     *tensor.GPT
	optimizer *tensor.AdamW
	loader    *DataLoader
}

// LoadTokens reads the first MaxChars characters of the configured corpus
// and encodes them with tok.
func LoadTokens(config *Config, tok Tokenizer) ([]int, error) {
	text, err := LoadCorpus(config.Corpus, config.MaxChars)
	if err != nil {
		return nil, err
	}
	tokens, err := tok.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize corpus: %w", err)
	}
	logger.Log.Info("loaded corpus", "path", config.Corpus, "bytes", len(text), "tokens", len(tokens))
	return tokens, nil
}

// NewTrainer prepares training of model on tokens.
func NewTrainer(config *Config, model *tensor.GPT, tokens []int) (*Trainer, error) {
	for _, tok := range tokens {
		if tok < 0 || tok >= model.Config.VocabSize {
			return nil, fmt.Errorf("%w: token %d, vocab size %d", tensor.ErrTokenOutOfRange, tok, model.Config.VocabSize)
		}
	}
	if config.SeqLen > model.Config.BlockSize {
		return nil, fmt.Errorf("seq_len %d exceeds block size %d", config.SeqLen, model.Config.BlockSize)
	}
	loader, err := NewDataLoader(tokens, config.BatchSize, config.SeqLen)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("using device", "device", "cpu")
	return &Trainer{
		config:    config,
		model:     model,
		optimizer: tensor.NewAdamW(model.Parameters(), config.LearningRate, tensor.WithWeightDecay(config.WeightDecay)),
		loader:    loader,
	}, nil
}

// Train runs the configured number of steps and returns the loss of each.
// On cancellation it returns the losses so far together with ctx's error.
func (t *Trainer) Train(ctx context.Context) ([]float32, error) {
	cfg := t.config
	logger.Log.Info("training",
		"steps", cfg.Steps,
		"batch_size", cfg.BatchSize,
		"seq_len", cfg.SeqLen,
		"lr", cfg.LearningRate,
		"batches", t.loader.NumBatches(),
		"single_batch", cfg.SingleBatch,
		"params", t.model.NumParams(),
	)

	var bar *progressbar.ProgressBar
	if cfg.ShowProgress {
		bar = progressbar.NewOptions(cfg.Steps,
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	x, y := t.loader.NextBatch()
	losses := make([]float32, 0, cfg.Steps)
	for step := 0; step < cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return losses, err
		}
		if step > 0 && !cfg.SingleBatch {
			x, y = t.loader.NextBatch()
		}

		start := time.Now()
		loss, err := t.step(x, y)
		if err != nil {
			return losses, fmt.Errorf("step %d: %w", step, err)
		}
		losses = append(losses, loss)
		metrics.RecordTrainStep(loss, cfg.BatchSize*cfg.SeqLen, time.Since(start))

		if step%cfg.LogEvery == 0 || step == cfg.Steps-1 {
			logger.Log.Info("train step", "step", step, "loss", loss, "duration", time.Since(start))
		}
		if cfg.ShowProgress {
			bar.Describe(fmt.Sprintf("Training [loss %.4f]", loss))
			bar.Add(1)
		}
	}
	if cfg.ShowProgress {
		bar.Finish()
	}

	if cfg.CheckpointPath != "" {
		if err := tensor.SaveCheckpoint(t.model, cfg.CheckpointPath); err != nil {
			return losses, err
		}
	}
	return losses, nil
}

func (t *Trainer) step(x, y [][]int) (float32, error) {
	t.optimizer.ZeroGrad()
	_, loss, err := t.model.ForwardLoss(x, y)
	if err != nil {
		return 0, err
	}
	if err := t.model.Backward(); err != nil {
		return 0, err
	}
	norm := tensor.ClipGradNorm(t.model.Parameters(), t.config.GradClip)
	metrics.RecordGradNorm(norm)
	t.optimizer.Step()
	return loss, nil
}
