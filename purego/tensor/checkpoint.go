package tensor

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"nano-gpt-go/internal/logger"
)

// Metadata keys written by SaveCheckpoint.
const (
	MetaConfig      = "gpt_config"
	MetaFingerprint = "fingerprint"
)

// Fingerprint hashes parameter names and values in state-dict order.
func (m *GPT) Fingerprint() uint64 {
	h := xxhash.New()
	buf := make([]byte, 4)
	for _, p := range m.Parameters() {
		h.WriteString(p.Name)
		for _, v := range p.Value.Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			h.Write(buf)
		}
	}
	return h.Sum64()
}

// WriteSafetensors writes params as F32 tensors with the given metadata.
func WriteSafetensors(w io.Writer, params []*Parameter, metadata map[string]string) error {
	header := make(map[string]interface{}, len(params)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var offset int64
	for _, p := range params {
		size := int64(p.Value.Size()) * 4
		header[p.Name] = TensorInfo{
			Dtype:  "F32",
			Shape:  p.Value.Shape,
			Offset: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	// pad the header so tensor data starts 8-byte aligned
	for len(headerBytes)%8 != 0 {
		headerBytes = append(headerBytes, ' ')
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		return err
	}
	if _, err := bw.Write(headerBytes); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, p := range params {
		for _, v := range p.Value.Data {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// SaveCheckpoint writes the model's state dict, config and fingerprint.
func SaveCheckpoint(m *GPT, path string) error {
	cfg, err := json.Marshal(m.Config)
	if err != nil {
		return err
	}
	fp := m.Fingerprint()
	metadata := map[string]string{
		"format":        "pt",
		MetaConfig:      string(cfg),
		MetaFingerprint: strconv.FormatUint(fp, 16),
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	if err := WriteSafetensors(f, m.Parameters(), metadata); err != nil {
		f.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Log.Info("saved checkpoint", "path", path, "params", m.NumParams(), "fingerprint", fmt.Sprintf("%016x", fp))
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint and verifies
// its fingerprint.
func LoadCheckpoint(path string) (*GPT, error) {
	f, err := ReadSafetensors(path)
	if err != nil {
		return nil, err
	}
	raw, ok := f.Metadata[MetaConfig]
	if !ok {
		return nil, fmt.Errorf("%s: no %s in metadata", path, MetaConfig)
	}
	var cfg GPTConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", MetaConfig, err)
	}

	m, err := NewGPT(cfg, 0)
	if err != nil {
		return nil, err
	}
	params := m.Parameters()
	if len(f.Tensors) != len(params) {
		return nil, fmt.Errorf("%w: %d != %d", ErrKeyMismatch, len(f.Tensors), len(params))
	}
	for _, p := range params {
		t, err := f.Tensor(p.Name)
		if err != nil {
			return nil, err
		}
		if !SameShape(t.Shape, p.Value.Shape) {
			return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, p.Name, t.Shape, p.Value.Shape)
		}
		copy(p.Value.Data, t.Data)
	}

	if want, ok := f.Metadata[MetaFingerprint]; ok {
		got := strconv.FormatUint(m.Fingerprint(), 16)
		if got != want {
			return nil, fmt.Errorf("%w: %s has %s, computed %s", ErrFingerprint, path, want, got)
		}
	}
	logger.Log.Info("loaded checkpoint", "path", path, "params", m.NumParams())
	return m, nil
}
