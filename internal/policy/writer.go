package policy

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/legged-rl/policyconv/internal/tensor"
)

const producerVersion = "policyconv-0.1.0"

// Save writes a traced policy file. The training pipeline is the usual
// producer; tests use it to fabricate fixtures.
//
// Tensors are laid out in name order so identical inputs produce identical
// files.
func Save(path string, graph []LayerSpec, state map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	// Assemble the data section in memory. Policies are small (a few MB at
	// most), so the checksum can be computed before anything hits disk.
	var data []byte
	metas := make([]TensorMeta, 0, len(names))
	for _, name := range names {
		raw := state[name]
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("tensor %q: only float32 tensors can be serialized, got %s", name, raw.DType())
		}
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  DTypeFloat32,
			Shape:  []int(raw.Shape()),
			Offset: int64(len(data)),
			Size:   int64(len(raw.Data())),
		})
		data = append(data, raw.Data()...)
	}

	header := Header{
		FormatVersion: FormatVersion,
		Producer:      producerVersion,
		CreatedAt:     time.Now().UTC(),
		Graph:         graph,
		Tensors:       metas,
		Checksum:      ComputeChecksum(data),
		Metadata:      metadata,
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	//nolint:gosec // G304: the output path comes from user input by design
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.WriteString(MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	pos := int64(4+4+8) + int64(len(headerJSON))
	if padding := alignUp(pos) - pos; padding > 0 {
		if _, err := file.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}

	return file.Sync()
}
