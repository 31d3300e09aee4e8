package tensor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/x448/float16"

	"nano-gpt-go/internal/logger"
	"nano-gpt-go/internal/metrics"
)

// TensorInfo describes a tensor in safetensors format
type TensorInfo struct {
	Dtype  string   `json:"dtype"`
	Shape  []int    `json:"shape"`
	Offset [2]int64 `json:"data_offsets"`
}

const metadataKey = "__metadata__"

// SafetensorsFile is a parsed safetensors blob held in memory.
type SafetensorsFile struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo

	data []byte // tensor bytes after the header
}

// ReadSafetensors reads and parses the file at path.
func ReadSafetensors(path string) (*SafetensorsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	f, err := ParseSafetensors(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseSafetensors parses an in-memory safetensors blob: an 8-byte little
// endian header length, a JSON header, then the raw tensor bytes.
func ParseSafetensors(data []byte) (*SafetensorsFile, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}
	headerSize := binary.LittleEndian.Uint64(data[:8])
	if headerSize > uint64(len(data)-8) {
		return nil, fmt.Errorf("safetensors: header size %d exceeds file size %d", headerSize, len(data))
	}
	headerBytes := data[8 : 8+headerSize]
	tensorData := data[8+headerSize:]

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	f := &SafetensorsFile{
		Metadata: map[string]string{},
		Tensors:  make(map[string]TensorInfo, len(raw)),
		data:     tensorData,
	}
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &f.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("failed to parse tensor %s: %w", name, err)
		}
		if err := f.check(name, info); err != nil {
			return nil, err
		}
		f.Tensors[name] = info
	}
	return f, nil
}

func dtypeSize(dtype string) (int, error) {
	switch dtype {
	case "F32":
		return 4, nil
	case "F16", "BF16":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

func (f *SafetensorsFile) check(name string, info TensorInfo) error {
	size, err := dtypeSize(info.Dtype)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	start, end := info.Offset[0], info.Offset[1]
	if start < 0 || end < start || end > int64(len(f.data)) {
		return fmt.Errorf("tensor %s: offsets [%d, %d) outside data of %d bytes", name, start, end, len(f.data))
	}
	numElements := int64(1)
	for _, dim := range info.Shape {
		numElements *= int64(dim)
	}
	if numElements*int64(size) != end-start {
		return fmt.Errorf("tensor %s: shape %v needs %d bytes, has %d", name, info.Shape, numElements*int64(size), end-start)
	}
	return nil
}

// Keys returns the tensor names in sorted order.
func (f *SafetensorsFile) Keys() []string {
	keys := make([]string, 0, len(f.Tensors))
	for k := range f.Tensors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Tensor decodes the named tensor to float32.
func (f *SafetensorsFile) Tensor(name string) (*Tensor, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	tensorBytes := f.data[info.Offset[0]:info.Offset[1]]
	t := NewTensor(info.Shape...)

	switch info.Dtype {
	case "F32":
		for i := range t.Data {
			t.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(tensorBytes[i*4:]))
		}
	case "F16":
		for i := range t.Data {
			t.Data[i] = float16.Frombits(binary.LittleEndian.Uint16(tensorBytes[i*2:])).Float32()
		}
	case "BF16":
		// bfloat16 is the upper half of a float32
		for i := range t.Data {
			bits := uint32(binary.LittleEndian.Uint16(tensorBytes[i*2:]))
			t.Data[i] = math.Float32frombits(bits << 16)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", info.Dtype)
	}
	return t, nil
}

// StateSource is a named collection of tensors, such as a checkpoint.
type StateSource interface {
	Keys() []string
	Tensor(name string) (*Tensor, error)
}

// MapSource is an in-memory StateSource.
type MapSource map[string]*Tensor

func (s MapSource) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s MapSource) Tensor(name string) (*Tensor, error) {
	t, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}
	return t, nil
}

// Checkpoints store these as Conv1D weights of shape [in, out]; Linear keeps
// [out, in], so they are transposed on import.
var transposed = []string{
	"attn.c_attn.weight",
	"attn.c_proj.weight",
	"mlp.c_fc.weight",
	"mlp.c_proj.weight",
}

func isTransposed(key string) bool {
	for _, suffix := range transposed {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// isBuffer reports keys that hold the attention mask rather than parameters.
func isBuffer(key string) bool {
	return strings.HasSuffix(key, ".attn.masked_bias") || strings.HasSuffix(key, ".attn.bias")
}

// ImportStats counts tensors copied by ImportState.
type ImportStats struct {
	Plain      int
	Transposed int
	Tied       bool
}

// ImportState copies a GPT-2 checkpoint state dict into m. Checkpoint names
// may omit the "transformer." prefix; mask buffers are ignored; a missing
// lm_head.weight is tied to the token embedding.
func ImportState(m *GPT, src StateSource) (ImportStats, error) {
	var stats ImportStats

	// normalized name -> checkpoint name
	names := make(map[string]string)
	for _, key := range src.Keys() {
		if isBuffer(key) {
			continue
		}
		name := key
		if !strings.HasPrefix(name, "transformer.") && name != "lm_head.weight" {
			name = "transformer." + name
		}
		names[name] = key
	}
	if _, ok := names["lm_head.weight"]; !ok {
		if wte, ok := names["transformer.wte.weight"]; ok {
			names["lm_head.weight"] = wte
			stats.Tied = true
		}
	}

	params := m.Parameters()
	if len(names) != len(params) {
		return stats, fmt.Errorf("%w: %d != %d", ErrKeyMismatch, len(names), len(params))
	}

	for _, p := range params {
		key, ok := names[p.Name]
		if !ok {
			return stats, fmt.Errorf("%w: %s", ErrMissingTensor, p.Name)
		}
		t, err := src.Tensor(key)
		if err != nil {
			return stats, fmt.Errorf("load %s: %w", key, err)
		}

		if isTransposed(p.Name) {
			if len(t.Shape) != 2 || !SameShape([]int{t.Shape[1], t.Shape[0]}, p.Value.Shape) {
				return stats, fmt.Errorf("%w: %s has shape %v, want transpose of %v", ErrShapeMismatch, key, t.Shape, p.Value.Shape)
			}
			copy(p.Value.Data, Transpose(t).Data)
			stats.Transposed++
			continue
		}

		if !SameShape(t.Shape, p.Value.Shape) {
			return stats, fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, key, t.Shape, p.Value.Shape)
		}
		copy(p.Value.Data, t.Data)
		stats.Plain++
	}
	return stats, nil
}

// FromPretrained builds a published GPT-2 model and loads its weights from a
// safetensors file, or from model.safetensors when path is a directory.
func FromPretrained(modelType, path string) (*GPT, error) {
	start := time.Now()
	cfg, err := PretrainedConfig(modelType)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("loading weights from pretrained gpt", "model_type", modelType, "path", path)

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "model.safetensors")
	}
	f, err := ReadSafetensors(path)
	if err != nil {
		return nil, err
	}

	m, err := NewGPT(cfg, 0)
	if err != nil {
		return nil, err
	}
	stats, err := ImportState(m, f)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}

	elapsed := time.Since(start)
	metrics.RecordCheckpointImport(elapsed, stats.Plain, stats.Transposed)
	logger.Log.Info("loaded pretrained weights",
		"model_type", modelType,
		"plain", stats.Plain,
		"transposed", stats.Transposed,
		"tied_lm_head", stats.Tied,
		"duration", elapsed,
	)
	return m, nil
}
