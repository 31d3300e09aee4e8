package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nano-gpt-go/nanogpt"
	"nano-gpt-go/purego/tensor"
)

var trainFlags struct {
	corpus       string
	maxChars     int
	tokenizerDir string
	model        string
	blockSize    int
	nLayer       int
	nHead        int
	nEmbd        int
	initFrom     string
	batch        int
	seq          int
	steps        int
	lr           float32
	weightDecay  float32
	gradClip     float64
	seed         uint64
	logEvery     int
	iterate      bool
	save         string
	progress     bool
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a GPT on a text corpus",
	Long: `Train a GPT on the first --max-chars characters of a corpus.

With --tokenizer-dir the corpus is tokenized with GPT-2 BPE and the model uses
the --model preset. Without it a character vocabulary is built from the corpus
and the small character-level configuration is used.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainFlags.corpus, "corpus", "input.txt", "training text file")
	f.IntVar(&trainFlags.maxChars, "max-chars", 1000, "characters of the corpus to use (0 for all)")
	f.StringVar(&trainFlags.tokenizerDir, "tokenizer-dir", "", "directory with tokenizer.json or vocab.json and merges.txt")
	f.StringVar(&trainFlags.model, "model", "gpt2", "model preset when training with a BPE tokenizer")
	f.IntVar(&trainFlags.blockSize, "block-size", 0, "override the preset block size")
	f.IntVar(&trainFlags.nLayer, "n-layer", 0, "override the preset layer count")
	f.IntVar(&trainFlags.nHead, "n-head", 0, "override the preset head count")
	f.IntVar(&trainFlags.nEmbd, "n-embd", 0, "override the preset embedding width")
	f.StringVar(&trainFlags.initFrom, "init-from", "", "start from pretrained weights in this directory")
	f.IntVar(&trainFlags.batch, "batch", 4, "batch size B")
	f.IntVar(&trainFlags.seq, "seq", 32, "sequence length T")
	f.IntVar(&trainFlags.steps, "steps", 50, "optimizer steps")
	f.Float32Var(&trainFlags.lr, "lr", 3e-4, "AdamW learning rate")
	f.Float32Var(&trainFlags.weightDecay, "weight-decay", 0.01, "AdamW weight decay")
	f.Float64Var(&trainFlags.gradClip, "grad-clip", 0, "clip the global gradient norm (0 disables)")
	f.Uint64Var(&trainFlags.seed, "seed", 1337, "parameter initialization seed")
	f.IntVar(&trainFlags.logEvery, "log-every", 1, "log every n steps")
	f.BoolVar(&trainFlags.iterate, "iterate", false, "walk through the corpus instead of repeating the first batch")
	f.StringVar(&trainFlags.save, "save", "", "write a checkpoint here after training")
	f.BoolVar(&trainFlags.progress, "progress", false, "show a progress bar")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	tf := trainFlags

	tok, err := loadTokenizer(tf.tokenizerDir, corpusIfChar(tf.tokenizerDir, tf.corpus), tf.maxChars)
	if err != nil {
		return err
	}

	model, err := trainModel(tok)
	if err != nil {
		return err
	}
	model.LogSummary()

	cfg, err := nanogpt.NewConfig(tf.corpus,
		nanogpt.WithMaxChars(tf.maxChars),
		nanogpt.WithBatchSize(tf.batch),
		nanogpt.WithSeqLen(tf.seq),
		nanogpt.WithSteps(tf.steps),
		nanogpt.WithLearningRate(tf.lr),
		nanogpt.WithWeightDecay(tf.weightDecay),
		nanogpt.WithGradClip(tf.gradClip),
		nanogpt.WithSeed(tf.seed),
		nanogpt.WithLogEvery(tf.logEvery),
		nanogpt.WithSingleBatch(!tf.iterate),
		nanogpt.WithCheckpointPath(tf.save),
		nanogpt.WithProgress(tf.progress),
		nanogpt.WithModelConfig(model.Config),
	)
	if err != nil {
		return err
	}

	tokens, err := nanogpt.LoadTokens(cfg, tok)
	if err != nil {
		return err
	}
	trainer, err := nanogpt.NewTrainer(cfg, model, tokens)
	if err != nil {
		return err
	}
	losses, err := trainer.Train(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "trained %d steps on %d tokens, final loss %.4f\n",
		len(losses), len(tokens), losses[len(losses)-1])
	return nil
}

func corpusIfChar(tokenizerDir, corpus string) string {
	if tokenizerDir != "" {
		return ""
	}
	return corpus
}

// trainModel builds a fresh model sized for tok, or imports --init-from
func trainModel(tok nanogpt.Tokenizer) (*tensor.GPT, error) {
	tf := trainFlags
	if tf.initFrom != "" {
		return tensor.FromPretrained(tf.model, tf.initFrom)
	}

	var cfg tensor.GPTConfig
	if tf.tokenizerDir == "" {
		cfg = tensor.CharConfig()
		cfg.VocabSize = tok.VocabSize()
	} else {
		var err error
		if cfg, err = tensor.PretrainedConfig(tf.model); err != nil {
			return nil, err
		}
		if tok.VocabSize() > cfg.VocabSize {
			cfg.VocabSize = tok.VocabSize()
		}
	}
	if tf.blockSize > 0 {
		cfg.BlockSize = tf.blockSize
	}
	if tf.nLayer > 0 {
		cfg.NLayer = tf.nLayer
	}
	if tf.nHead > 0 {
		cfg.NHead = tf.nHead
	}
	if tf.nEmbd > 0 {
		cfg.NEmbd = tf.nEmbd
	}
	return tensor.NewGPT(cfg, tf.seed)
}
