package purego

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"nano-gpt-go/internal/logger"
)

// DefaultHubURL is the Hugging Face hub
const DefaultHubURL = "https://huggingface.co"

// GPT2Files are the files needed to import and tokenize a GPT-2 checkpoint
var GPT2Files = []string{"model.safetensors", "vocab.json", "merges.txt", "tokenizer.json", "config.json"}

// HubClient downloads model files from a Hugging Face compatible hub
type HubClient struct {
	baseURL  string
	client   *http.Client
	progress bool
}

// NewHubClient creates a client for baseURL; an empty baseURL uses
// DefaultHubURL
func NewHubClient(baseURL string, client *http.Client, progress bool) *HubClient {
	if baseURL == "" {
		baseURL = DefaultHubURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HubClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		progress: progress,
	}
}

// HubRepo maps a model type to its repository on the hub
func HubRepo(modelType string) string {
	if strings.Contains(modelType, "/") {
		return modelType
	}
	return "openai-community/" + modelType
}

// Download fetches files of repo into dir, skipping files that already
// exist there
func (h *HubClient) Download(ctx context.Context, repo, dir string, files []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range files {
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			logger.Log.Info("file exists, skipping", "path", dest)
			continue
		}
		if err := h.fetch(ctx, repo, name, dest); err != nil {
			return fmt.Errorf("download %s: %w", name, err)
		}
	}
	return nil
}

func (h *HubClient) fetch(ctx context.Context, repo, name, dest string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", h.baseURL, repo, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to hub: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	// write next to the destination and rename once complete
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if h.progress {
		w = io.MultiWriter(tmp, progressbar.DefaultBytes(resp.ContentLength, name))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}
	logger.Log.Info("downloaded", "file", name, "bytes", n, "path", dest)
	return nil
}
