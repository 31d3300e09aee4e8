package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nano-gpt-go/purego"
)

var verifyFlags struct {
	model        string
	weights      string
	checkpoint   string
	tokenizerDir string
	onnx         string
	ortLib       string
	prompt       string
	tolerance    float64
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare the Go forward pass with an exported ONNX graph",
	Long: `Run the prompt through the imported model and through an ONNX export of
the same checkpoint, and fail when any logit differs by more than --tolerance.`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyFlags.model, "model", "gpt2", "pretrained model type")
	f.StringVar(&verifyFlags.weights, "weights", "", "directory or model.safetensors with pretrained weights")
	f.StringVar(&verifyFlags.checkpoint, "checkpoint", "", "checkpoint file")
	f.StringVar(&verifyFlags.tokenizerDir, "tokenizer-dir", "", "tokenizer directory (defaults to --weights)")
	f.StringVar(&verifyFlags.onnx, "onnx", "", "ONNX graph with input_ids and logits")
	f.StringVar(&verifyFlags.ortLib, "ort-lib", "", "path to the onnxruntime shared library")
	f.StringVar(&verifyFlags.prompt, "prompt", "Hello, I'm a language model,", "prompt text")
	f.Float64Var(&verifyFlags.tolerance, "tolerance", 1e-3, "largest accepted absolute logit difference")
	verifyCmd.MarkFlagRequired("onnx")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	vf := verifyFlags

	runner, err := loadRunner(vf.model, vf.weights, vf.checkpoint)
	if err != nil {
		return err
	}
	model := runner.Model()
	tokDir := vf.tokenizerDir
	if tokDir == "" {
		tokDir = weightsDir(vf.weights)
	}
	tok, err := loadTokenizer(tokDir, "", 0)
	if err != nil {
		return err
	}
	ids, err := tok.Encode(vf.prompt)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		ids = []int{tok.EOSTokenID()}
	}
	if len(ids) > model.Config.BlockSize {
		ids = ids[len(ids)-model.Config.BlockSize:]
	}

	ref, err := purego.NewONNXReference(vf.onnx, vf.ortLib, model.Config)
	if err != nil {
		return err
	}
	defer ref.Close()

	c, err := purego.VerifyModel(model, ref, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "positions %d, max |diff| %.3g, mean |diff| %.3g, argmax agreement %d/%d\n",
		c.Positions, c.MaxAbsDiff, c.MeanAbsDiff, c.ArgmaxAgree, c.Positions)
	if c.MaxAbsDiff > vf.tolerance {
		return fmt.Errorf("max logit difference %.3g exceeds tolerance %.3g", c.MaxAbsDiff, vf.tolerance)
	}
	return nil
}
