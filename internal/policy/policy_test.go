package policy

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legged-rl/policyconv/internal/tensor"
)

// testGraph is a 3-in, 2-out policy: linear -> tanh -> linear.
func testGraph() []LayerSpec {
	return []LayerSpec{
		{Type: LayerLinear, In: 3, Out: 4},
		{Type: LayerTanh},
		{Type: LayerLinear, In: 4, Out: 2},
	}
}

func testState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	mk := func(values []float32, shape tensor.Shape) *tensor.RawTensor {
		raw, err := tensor.FromFloat32(values, shape)
		require.NoError(t, err)
		return raw
	}
	return map[string]*tensor.RawTensor{
		WeightName(0): mk(make([]float32, 12), tensor.Shape{4, 3}),
		BiasName(0):   mk([]float32{1, 2, 3, 4}, tensor.Shape{4}),
		WeightName(2): mk(make([]float32, 8), tensor.Shape{2, 4}),
		BiasName(2):   mk([]float32{0.5, -0.5}, tensor.Shape{2}),
	}
}

func saveFixture(t *testing.T, graph []LayerSpec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.pt")
	require.NoError(t, Save(path, graph, testState(t), map[string]string{"robot": "go2"}))
	return path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := saveFixture(t, testGraph())

	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, m.InFeatures())
	assert.Equal(t, 2, m.OutFeatures())
	assert.Len(t, m.Graph(), 3)
	assert.True(t, m.Training(), "freshly loaded model starts in training mode")

	m.Eval()
	assert.False(t, m.Training())
}

func TestForward(t *testing.T) {
	path := saveFixture(t, testGraph())
	m, err := Load(path)
	require.NoError(t, err)
	m.Eval()

	input, err := tensor.Randn(tensor.Shape{1, 3})
	require.NoError(t, err)

	out, err := m.Forward(input)
	require.NoError(t, err)
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 2}))

	// Zero weights: output is exactly the second bias.
	assert.Equal(t, []float32{0.5, -0.5}, out.AsFloat32())
}

func TestForward_ShapeMismatch(t *testing.T) {
	path := saveFixture(t, testGraph())
	m, err := Load(path)
	require.NoError(t, err)

	input, err := tensor.Randn(tensor.Shape{1, 48})
	require.NoError(t, err)

	_, err = m.Forward(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects 3 observations")
}

func TestLoad_InvalidMagic(t *testing.T) {
	path := saveFixture(t, testGraph())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(data, "NOPE")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLoad_CorruptedData(t *testing.T) {
	path := saveFixture(t, testGraph())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(path)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestLoad_SkipChecksum(t *testing.T) {
	path := saveFixture(t, testGraph())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := NewReaderWithOptions(path, ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
}

func TestLoad_TruncatedFile(t *testing.T) {
	// The header parses (empty tensor table, checksum set) but the file
	// ends before the aligned data section begins.
	path := filepath.Join(t.TempDir(), "policy.pt")
	headerJSON := []byte(`{"format_version":1,"created_at":"2026-01-01T00:00:00Z",` +
		`"graph":[{"type":"linear","in":1,"out":1}],"tensors":[],` +
		`"checksum":"` + ComputeChecksum(nil) + `"}`)

	buf := []byte(MagicBytes)
	buf = binary.LittleEndian.AppendUint32(buf, FormatVersion)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrTruncatedFile)
}

func TestLoad_SchemaRejectsUnknownLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.pt")
	graph := []LayerSpec{{Type: "conv2d", In: 3, Out: 3}}
	require.NoError(t, Save(path, graph, testState(t), nil))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header validation failed")
}

func TestNewModel_MissingTensor(t *testing.T) {
	state := testState(t)
	delete(state, WeightName(2))

	_, err := NewModel(testGraph(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing tensor")
}

func TestNewModel_WidthMismatch(t *testing.T) {
	graph := []LayerSpec{
		{Type: LayerLinear, In: 3, Out: 4},
		{Type: LayerTanh},
		{Type: LayerLinear, In: 5, Out: 2}, // previous layer produces 4
	}

	_, err := NewModel(graph, testState(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previous layer produces 4")
}

func TestNewModel_NoLinearLayers(t *testing.T) {
	_, err := NewModel([]LayerSpec{{Type: LayerTanh}}, nil)
	require.Error(t, err)
}
