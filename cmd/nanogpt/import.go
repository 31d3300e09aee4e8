package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nano-gpt-go/purego/tensor"
)

var importFlags struct {
	model   string
	weights string
	out     string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import Hugging Face GPT-2 weights into a checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := tensor.FromPretrained(importFlags.model, importFlags.weights)
		if err != nil {
			return err
		}
		model.LogSummary()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s: %d parameters, fingerprint %016x\n", importFlags.model, model.NumParams(), model.Fingerprint())
		if importFlags.out == "" {
			return nil
		}
		if err := tensor.SaveCheckpoint(model, importFlags.out); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", importFlags.out)
		return nil
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.model, "model", "gpt2", "model type, one of "+strings.Join(tensor.PretrainedModelTypes(), ", "))
	f.StringVar(&importFlags.weights, "weights", "", "directory or model.safetensors with pretrained weights")
	f.StringVar(&importFlags.out, "out", "", "checkpoint file to write")
	importCmd.MarkFlagRequired("weights")
	rootCmd.AddCommand(importCmd)
}
