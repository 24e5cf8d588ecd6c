package convert

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legged-rl/policyconv/internal/policy"
	"github.com/legged-rl/policyconv/internal/tensor"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// savePolicy writes a small traced policy fixture: linear(in,8) -> tanh ->
// linear(8,out).
func savePolicy(t *testing.T, path string, in, out int) {
	t.Helper()
	graph := []policy.LayerSpec{
		{Type: policy.LayerLinear, In: in, Out: 8},
		{Type: policy.LayerTanh},
		{Type: policy.LayerLinear, In: 8, Out: out},
	}
	zeros := func(shape tensor.Shape) *tensor.RawTensor {
		raw, err := tensor.NewRaw(shape, tensor.Float32)
		require.NoError(t, err)
		return raw
	}
	state := map[string]*tensor.RawTensor{
		policy.WeightName(0): zeros(tensor.Shape{8, in}),
		policy.BiasName(0):   zeros(tensor.Shape{8}),
		policy.WeightName(2): zeros(tensor.Shape{out, 8}),
		policy.BiasName(2):   zeros(tensor.Shape{out}),
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, policy.Save(path, graph, state, nil))
}

func TestConvert_Success(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy", "go2", "policy.pt")
	savePolicy(t, source, 5, 2)

	result := New(quiet()).Convert(Request{SourcePath: source, InputSize: 5})

	require.True(t, result.Succeeded, "message: %s", result.Message)
	assert.NoError(t, result.Err)
	assert.Equal(t, DerivedOutputPath(source), result.OutputPath)
	assert.FileExists(t, result.OutputPath)
}

func TestConvert_ExplicitOutputPath(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "policy.pt")
	output := filepath.Join(dir, "exported", "model.onnx")
	savePolicy(t, source, 5, 2)
	require.NoError(t, os.MkdirAll(filepath.Dir(output), 0o755))

	result := New(quiet()).Convert(Request{SourcePath: source, InputSize: 5, OutputPath: output})

	require.True(t, result.Succeeded, "message: %s", result.Message)
	assert.Equal(t, output, result.OutputPath)
	assert.FileExists(t, output)
}

func TestConvert_MissingSource(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy.pt")

	result := New(quiet()).Convert(Request{SourcePath: source, InputSize: 5})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, ErrNotFound)
	assert.NoFileExists(t, DerivedOutputPath(source))
}

func TestConvert_ShapeMismatch(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy.pt")
	savePolicy(t, source, 5, 2)

	result := New(quiet()).Convert(Request{SourcePath: source, InputSize: 7})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, ErrShapeMismatch)
	assert.Contains(t, result.Message, "--input_size", "message should tell the caller how to retry")
	assert.NoFileExists(t, DerivedOutputPath(source))
}

func TestConvert_CorruptSource(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy.pt")
	require.NoError(t, os.WriteFile(source, []byte("not a traced policy"), 0o644))

	result := New(quiet()).Convert(Request{SourcePath: source, InputSize: 5})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, ErrLoad)
	assert.NoFileExists(t, DerivedOutputPath(source))
}

func TestConvert_TruncatedSource(t *testing.T) {
	// A file whose header parses but which ends before the aligned data
	// section must fail at the conversion boundary, not crash it.
	source := filepath.Join(t.TempDir(), "policy.pt")
	headerJSON := []byte(`{"format_version":1,` +
		`"graph":[{"type":"linear","in":1,"out":1}],"tensors":[],` +
		`"checksum":"` + policy.ComputeChecksum(nil) + `"}`)
	buf := []byte(policy.MagicBytes)
	buf = binary.LittleEndian.AppendUint32(buf, policy.FormatVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	require.NoError(t, os.WriteFile(source, buf, 0o644))

	result := New(quiet()).Convert(Request{SourcePath: source, InputSize: 5})

	require.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Err, ErrLoad)
	assert.NoFileExists(t, DerivedOutputPath(source))
}

func TestConvert_DefaultInputSize(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy.pt")
	savePolicy(t, source, DefaultInputSize(), 12)

	result := New(quiet()).Convert(Request{SourcePath: source})

	require.True(t, result.Succeeded, "message: %s", result.Message)
}

func TestConvert_VerifierFailureDoesNotDowngrade(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy.pt")
	savePolicy(t, source, 5, 2)

	failing := func(string) error { return errors.New("simulated checker crash") }
	result := New(quiet(), WithChecker(failing)).Convert(Request{SourcePath: source, InputSize: 5})

	require.True(t, result.Succeeded)
	assert.FileExists(t, result.OutputPath)
}

func TestConvert_VerifierUnavailableDoesNotBlock(t *testing.T) {
	source := filepath.Join(t.TempDir(), "policy.pt")
	savePolicy(t, source, 5, 2)

	result := New(quiet(), WithChecker(nil)).Convert(Request{SourcePath: source, InputSize: 5})

	require.True(t, result.Succeeded)
	assert.FileExists(t, result.OutputPath)
}

func TestDerivedOutputPath(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("policy/go2/policy.onnx"),
		DerivedOutputPath(filepath.FromSlash("policy/go2/policy.pt")))
}

func TestConvertBatch(t *testing.T) {
	root := t.TempDir()
	savePolicy(t, filepath.Join(root, "go2", "policy.pt"), 5, 2)
	savePolicy(t, filepath.Join(root, "a1", "policy.pt"), 5, 2)
	savePolicy(t, filepath.Join(root, "h1", "policy.pt"), 7, 2) // fails the shape check
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	summary, err := New(quiet()).ConvertBatch(root, 5)

	require.NoError(t, err)
	assert.Equal(t, BatchSummary{Total: 3, Succeeded: 2}, summary)
	assert.FileExists(t, filepath.Join(root, "go2", "policy.onnx"))
	assert.FileExists(t, filepath.Join(root, "a1", "policy.onnx"))
	assert.NoFileExists(t, filepath.Join(root, "h1", "policy.onnx"))
}

func TestConvertBatch_MissingRoot(t *testing.T) {
	_, err := New(quiet()).ConvertBatch(filepath.Join(t.TempDir(), "missing"), 0)
	require.ErrorIs(t, err, ErrNotFound)
}
