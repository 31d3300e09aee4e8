package nanogpt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/schollz/progressbar/v3"

	"nano-gpt-go/internal/logger"
	"nano-gpt-go/internal/metrics"
	"nano-gpt-go/purego/tensor"
)

// Output represents one generated row. Text and TokenIDs include the
// prompt, Completion holds only the sampled part.
type Output struct {
	Text       string
	TokenIDs   []int
	Completion string
}

// Generator samples continuations of a prompt
type Generator struct {
	modelRunner ModelRunner
	tokenizer   Tokenizer
}

// NewGenerator creates a new generator
func NewGenerator(modelRunner ModelRunner, tokenizer Tokenizer) *Generator {
	return &Generator{
		modelRunner: modelRunner,
		tokenizer:   tokenizer,
	}
}

// Close cleans up resources
func (g *Generator) Close() error {
	return g.modelRunner.Close()
}

// Generate replicates the encoded prompt into NumReturnSequences rows and
// extends each row one sampled token at a time until it is MaxLength tokens
// long. An empty prompt starts from the EOS token. Each output holds the
// whole row, prompt included.
func (g *Generator) Generate(ctx context.Context, prompt string, sp *SamplingParams, useProgress bool) ([]Output, error) {
	tokenIDs, err := g.tokenizer.Encode(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prompt: %w", err)
	}
	if len(tokenIDs) == 0 {
		tokenIDs = []int{g.tokenizer.EOSTokenID()}
	}
	if len(tokenIDs) >= sp.MaxLength {
		logger.Log.Warn("prompt already reaches max length", "prompt_tokens", len(tokenIDs), "max_length", sp.MaxLength)
	}

	seqs := make([]*Sequence, sp.NumReturnSequences)
	for i := range seqs {
		seqs[i] = NewSequence(tokenIDs)
		if seqs[i].Len() >= sp.MaxLength {
			seqs[i].Status = StatusFinished
		}
	}

	rng := rand.New(rand.NewPCG(sp.Seed, sp.Seed))
	params := sp.tensorParams()
	eos := g.tokenizer.EOSTokenID()
	blockSize := g.modelRunner.BlockSize()

	// Set up progress bar
	var bar *progressbar.ProgressBar
	if useProgress {
		steps := sp.MaxLength - len(tokenIDs)
		if steps < 0 {
			steps = 0
		}
		bar = progressbar.NewOptions(steps,
			progressbar.OptionSetDescription("Generating"),
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

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var active []*Sequence
		var contexts [][]int
		for _, seq := range seqs {
			if !seq.IsFinished() {
				active = append(active, seq)
				contexts = append(contexts, seq.Context(blockSize))
			}
		}
		if len(active) == 0 {
			break
		}

		start := time.Now()
		logits, err := g.modelRunner.NextTokenLogits(contexts)
		if err != nil {
			return nil, fmt.Errorf("model inference failed: %w", err)
		}

		for i, seq := range active {
			tok := tensor.Sample(logits[i], params, rng)
			seq.AppendToken(tok)
			if seq.Len() >= sp.MaxLength || (sp.StopAtEOS && seq.LastToken == eos) {
				seq.Status = StatusFinished
			}
		}
		metrics.RecordGeneratedTokens(len(active))

		if useProgress {
			elapsed := time.Since(start).Seconds()
			bar.Describe(fmt.Sprintf("Generating [%dtok/s]", int(float64(len(active))/elapsed)))
			bar.Add(1)
		}
	}

	if useProgress {
		bar.Finish()
	}

	outputs := make([]Output, len(seqs))
	completionTokens := 0
	for i, seq := range seqs {
		text, err := g.tokenizer.Decode(seq.TokenIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tokens: %w", err)
		}
		completion, err := g.tokenizer.Decode(seq.CompletionTokenIDs())
		if err != nil {
			return nil, fmt.Errorf("failed to decode tokens: %w", err)
		}
		outputs[i] = Output{
			Text:       text,
			TokenIDs:   seq.TokenIDs,
			Completion: completion,
		}
		completionTokens += seq.NumCompletionTokens()
	}
	logger.Log.Debug("generation finished", "rows", len(outputs), "completion_tokens", completionTokens, "max_length", sp.MaxLength)
	return outputs, nil
}
