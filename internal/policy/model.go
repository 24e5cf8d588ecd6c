package policy

import (
	"fmt"

	"github.com/legged-rl/policyconv/internal/tensor"
)

// Model is a loaded traced policy, ready for inference. The engine is
// inference-only: there is no gradient tape, so a forward pass never
// tracks gradients.
type Model struct {
	graph       []LayerSpec
	state       map[string]*tensor.RawTensor
	layers      []layer
	inFeatures  int
	outFeatures int
	training    bool
}

// layer is one compiled node of the forward path.
type layer struct {
	spec   LayerSpec
	weight *tensor.RawTensor // linear only
	bias   *tensor.RawTensor // linear only
}

// Load reads a traced policy file and compiles it into a runnable Model.
func Load(path string) (*Model, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	state, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return NewModel(r.Header().Graph, state)
}

// NewModel compiles a traced graph with its bound weights.
//
// The graph must contain at least one linear layer, every linear layer
// must have its weight [out, in] and bias [out] in the state dict, and
// consecutive layer widths must agree.
func NewModel(graph []LayerSpec, state map[string]*tensor.RawTensor) (*Model, error) {
	m := &Model{
		graph:    graph,
		state:    state,
		training: true,
	}

	width := 0 // unknown until the first linear layer
	for i, spec := range graph {
		switch spec.Type {
		case LayerLinear:
			if width != 0 && width != spec.In {
				return nil, fmt.Errorf("layer %d: expects %d input features but previous layer produces %d",
					i, spec.In, width)
			}
			weight, bias, err := bindLinear(state, i, spec)
			if err != nil {
				return nil, err
			}
			if m.inFeatures == 0 {
				m.inFeatures = spec.In
			}
			width = spec.Out
			m.layers = append(m.layers, layer{spec: spec, weight: weight, bias: bias})
		case LayerReLU, LayerTanh, LayerELU, LayerSigmoid:
			m.layers = append(m.layers, layer{spec: spec})
		default:
			return nil, fmt.Errorf("layer %d: unknown layer type %q", i, spec.Type)
		}
	}

	if m.inFeatures == 0 {
		return nil, fmt.Errorf("traced graph has no linear layers")
	}
	m.outFeatures = width
	return m, nil
}

// bindLinear looks up and shape-checks a linear layer's parameters.
func bindLinear(state map[string]*tensor.RawTensor, i int, spec LayerSpec) (weight, bias *tensor.RawTensor, err error) {
	weight, ok := state[WeightName(i)]
	if !ok {
		return nil, nil, fmt.Errorf("layer %d: missing tensor %q", i, WeightName(i))
	}
	if !weight.Shape().Equal(tensor.Shape{spec.Out, spec.In}) {
		return nil, nil, fmt.Errorf("layer %d: weight shape %v does not match spec [%d %d]",
			i, weight.Shape(), spec.Out, spec.In)
	}

	bias, ok = state[BiasName(i)]
	if !ok {
		return nil, nil, fmt.Errorf("layer %d: missing tensor %q", i, BiasName(i))
	}
	if !bias.Shape().Equal(tensor.Shape{spec.Out}) {
		return nil, nil, fmt.Errorf("layer %d: bias shape %v does not match spec [%d]",
			i, bias.Shape(), spec.Out)
	}
	return weight, bias, nil
}

// Eval places the model into evaluation (non-training) mode.
func (m *Model) Eval() {
	m.training = false
}

// Training reports whether the model is in training mode.
func (m *Model) Training() bool {
	return m.training
}

// Graph returns the ordered layer specs of the traced graph.
func (m *Model) Graph() []LayerSpec {
	return m.graph
}

// StateDict returns the bound parameter tensors by name.
func (m *Model) StateDict() map[string]*tensor.RawTensor {
	return m.state
}

// InFeatures returns the expected observation width.
func (m *Model) InFeatures() int {
	return m.inFeatures
}

// OutFeatures returns the action width.
func (m *Model) OutFeatures() int {
	return m.outFeatures
}

// Forward runs one inference pass.
//
// Input must be a float32 tensor of shape [batch, InFeatures]; the output
// has shape [batch, OutFeatures]. The input is never mutated.
func (m *Model) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := input.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("expected 2D input [batch, observations], got shape %v", shape)
	}
	if shape[1] != m.inFeatures {
		return nil, fmt.Errorf("policy expects %d observations, got %d", m.inFeatures, shape[1])
	}
	if input.DType() != tensor.Float32 {
		return nil, fmt.Errorf("expected float32 input, got %s", input.DType())
	}

	x := input
	for i, l := range m.layers {
		switch l.spec.Type {
		case LayerLinear:
			out, err := tensor.MatMulT(x, l.weight)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			if err := tensor.AddBias(out, l.bias); err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			x = out
		case LayerReLU:
			x = tensor.ReLU(x)
		case LayerTanh:
			x = tensor.Tanh(x)
		case LayerELU:
			x = tensor.ELU(x)
		case LayerSigmoid:
			x = tensor.Sigmoid(x)
		}
	}
	return x, nil
}
