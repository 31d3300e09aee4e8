package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nano-gpt-go/nanogpt"
	"nano-gpt-go/purego"
)

var generateFlags struct {
	model        string
	weights      string
	checkpoint   string
	tokenizerDir string
	corpus       string
	maxChars     int
	onnx         string
	ortLib       string
	prompt       string
	maxLength    int
	num          int
	topK         int
	topP         float32
	temperature  float32
	seed         uint64
	stopAtEOS    bool
	progress     bool
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Sample continuations of a prompt",
	Long: `Sample --num continuations of --prompt until each row is --max-length
tokens long. Weights come from a Hugging Face directory (--weights) or a
checkpoint written by train or import (--checkpoint). A character-level
checkpoint needs the --corpus it was trained on to rebuild its vocabulary.`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateFlags.model, "model", "gpt2", "pretrained model type")
	f.StringVar(&generateFlags.weights, "weights", "", "directory or model.safetensors with pretrained weights")
	f.StringVar(&generateFlags.checkpoint, "checkpoint", "", "checkpoint file")
	f.StringVar(&generateFlags.tokenizerDir, "tokenizer-dir", "", "tokenizer directory (defaults to --weights)")
	f.StringVar(&generateFlags.corpus, "corpus", "", "corpus for a character-level tokenizer")
	f.IntVar(&generateFlags.maxChars, "max-chars", 1000, "characters of --corpus used for the vocabulary")
	f.StringVar(&generateFlags.onnx, "onnx", "", "sample from this ONNX graph instead of the Go model")
	f.StringVar(&generateFlags.ortLib, "ort-lib", "", "path to the onnxruntime shared library")
	f.StringVar(&generateFlags.prompt, "prompt", "Hello, I'm a language model,", "prompt text")
	f.IntVar(&generateFlags.maxLength, "max-length", 30, "total tokens per row, prompt included")
	f.IntVar(&generateFlags.num, "num", 5, "number of rows")
	f.IntVar(&generateFlags.topK, "top-k", 50, "top-k filter (0 disables)")
	f.Float32Var(&generateFlags.topP, "top-p", 1, "nucleus filter")
	f.Float32Var(&generateFlags.temperature, "temperature", 1, "sampling temperature (0 is greedy)")
	f.Uint64Var(&generateFlags.seed, "seed", 42, "sampling seed")
	f.BoolVar(&generateFlags.stopAtEOS, "stop-at-eos", false, "finish a row when it samples EOS")
	f.BoolVar(&generateFlags.progress, "progress", false, "show a progress bar")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	gf := generateFlags

	native, err := loadRunner(gf.model, gf.weights, gf.checkpoint)
	if err != nil {
		return err
	}
	model := native.Model()
	tokDir := gf.tokenizerDir
	if tokDir == "" {
		tokDir = weightsDir(gf.weights)
	}
	tok, err := loadTokenizer(tokDir, gf.corpus, gf.maxChars)
	if err != nil {
		return err
	}
	if tok.VocabSize() > model.Config.VocabSize {
		return fmt.Errorf("tokenizer has %d tokens but the model only %d", tok.VocabSize(), model.Config.VocabSize)
	}

	var runner nanogpt.ModelRunner = native
	if gf.onnx != "" {
		if runner, err = purego.NewONNXReference(gf.onnx, gf.ortLib, model.Config); err != nil {
			return err
		}
	}

	sp, err := nanogpt.NewSamplingParams(
		nanogpt.WithMaxLength(gf.maxLength),
		nanogpt.WithNumReturnSequences(gf.num),
		nanogpt.WithTopK(gf.topK),
		nanogpt.WithTopP(gf.topP),
		nanogpt.WithTemperature(gf.temperature),
		nanogpt.WithSamplingSeed(gf.seed),
		nanogpt.WithStopAtEOS(gf.stopAtEOS),
	)
	if err != nil {
		return err
	}

	gen := nanogpt.NewGenerator(runner, tok)
	defer gen.Close()

	outputs, err := gen.Generate(cmd.Context(), gf.prompt, sp, gf.progress)
	if err != nil {
		return err
	}
	for _, out := range outputs {
		fmt.Fprintf(cmd.OutOrStdout(), "> %s\n", out.Text)
	}
	return nil
}
