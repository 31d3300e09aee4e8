package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"nano-gpt-go/purego"
)

var downloadFlags struct {
	model string
	out   string
	hub   string
	files []string
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch GPT-2 weights and tokenizer files from the Hugging Face hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := downloadFlags.out
		if out == "" {
			out = filepath.Join("models", filepath.Base(downloadFlags.model))
		}
		hub := purego.NewHubClient(downloadFlags.hub, nil, true)
		return hub.Download(cmd.Context(), purego.HubRepo(downloadFlags.model), out, downloadFlags.files)
	},
}

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&downloadFlags.model, "model", "gpt2", "model type or hub repository")
	f.StringVar(&downloadFlags.out, "out", "", "destination directory (default models/<model>)")
	f.StringVar(&downloadFlags.hub, "hub", purego.DefaultHubURL, "hub base URL")
	f.StringSliceVar(&downloadFlags.files, "files", purego.GPT2Files, "files to fetch")
	rootCmd.AddCommand(downloadCmd)
}
