package policy

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/legged-rl/policyconv/internal/tensor"
)

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool // skip checksum validation (faster but less safe)
}

// Reader reads traced policy files.
type Reader struct {
	file       *os.File
	header     Header
	version    uint32
	dataOffset int64
	dataSize   int64
	opts       ReaderOptions
	closed     bool
}

// NewReader opens a traced policy file with default options
// (checksum validation enabled).
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{})
}

// NewReaderWithOptions opens a traced policy file with custom options.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: the model path comes from user input by design
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	r := &Reader{file: file, opts: opts}
	if err := r.parseHeader(); err != nil {
		_ = file.Close() // best effort close on error
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	r.dataSize = info.Size() - r.dataOffset
	if r.dataSize < 0 {
		_ = file.Close()
		return nil, fmt.Errorf("%w: file is %d bytes but the data section starts at %d",
			ErrTruncatedFile, info.Size(), r.dataOffset)
	}

	if err := ValidateTensorOffsets(r.header.Tensors, r.dataSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("tensor table validation failed: %w", err)
	}

	if !opts.SkipChecksumValidation && r.header.Checksum != "" {
		if err := r.validateChecksum(); err != nil {
			_ = file.Close()
			return nil, err
		}
	}

	return r, nil
}

// parseHeader reads magic bytes, version, and the JSON header.
func (r *Reader) parseHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.file, magic); err != nil {
		return fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) != MagicBytes {
		return ErrInvalidMagic
	}

	if err := binary.Read(r.file, binary.LittleEndian, &r.version); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	if r.version != FormatVersion {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, r.version, FormatVersion)
	}

	var headerSize uint64
	if err := binary.Read(r.file, binary.LittleEndian, &headerSize); err != nil {
		return fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerJSON); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	if err := ValidateHeaderJSON(headerJSON); err != nil {
		return err
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return fmt.Errorf("failed to unmarshal header: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	r.dataOffset = alignUp(4 + 4 + 8 + int64(headerSize))
	return nil
}

// validateChecksum hashes the data section and compares against the header.
func (r *Reader) validateChecksum() error {
	data, err := r.readDataSection()
	if err != nil {
		return err
	}
	return ValidateChecksum(ComputeChecksum(data), r.header.Checksum)
}

func (r *Reader) readDataSection() ([]byte, error) {
	if _, err := r.file.Seek(r.dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to data section: %w", err)
	}
	data := make([]byte, r.dataSize)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("failed to read data section: %w", err)
	}
	return data, nil
}

// Header returns the parsed header.
func (r *Reader) Header() Header {
	return r.header
}

// ReadAll reads every tensor in the table.
func (r *Reader) ReadAll() (map[string]*tensor.RawTensor, error) {
	if r.closed {
		return nil, fmt.Errorf("reader is closed")
	}

	tensors := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		t, err := r.readTensor(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to read tensor %q: %w", meta.Name, err)
		}
		tensors[meta.Name] = t
	}
	return tensors, nil
}

func (r *Reader) readTensor(meta TensorMeta) (*tensor.RawTensor, error) {
	if meta.DType != DTypeFloat32 {
		return nil, fmt.Errorf("unsupported dtype %q", meta.DType)
	}

	if _, err := r.file.Seek(r.dataOffset+meta.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek failed: %w", err)
	}
	data := make([]byte, meta.Size)
	if _, err := io.ReadFull(r.file, data); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	return tensor.FromBytes(data, tensor.Shape(meta.Shape), tensor.Float32)
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}
