package onnx

import (
	"fmt"
	"os"

	"github.com/legged-rl/policyconv/internal/policy"
	"github.com/legged-rl/policyconv/internal/tensor"
)

// Export format constants.
const (
	irVersion          = 7
	defaultOpset       = 11
	producerName       = "policyconv"
	producerVersionStr = "0.1.0"
)

// ExportOptions configures ONNX export.
type ExportOptions struct {
	// EmbedParams embeds learned parameters as initializers
	// (default: true). When disabled, initializers carry shape and type
	// only and the runtime must bind weights externally.
	EmbedParams bool

	// ConstantFolding folds statically-computable nodes before
	// serialization (default: true).
	ConstantFolding bool

	// OpsetVersion is the target opset (default: 11).
	OpsetVersion int64

	// InputName and OutputName name the graph's observation input and
	// action output tensors.
	InputName  string
	OutputName string

	// BatchDimName declares axis 0 of input and output as a dynamic
	// dimension with this name. Empty means a fixed batch of 1.
	BatchDimName string
}

// DefaultExportOptions returns the options the conversion pipeline uses:
// embedded parameters, constant folding, opset 11, observations/actions
// naming, dynamic batch axis.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		EmbedParams:     true,
		ConstantFolding: true,
		OpsetVersion:    defaultOpset,
		InputName:       "observations",
		OutputName:      "actions",
		BatchDimName:    "batch_size",
	}
}

// Export traces the policy into an ONNX graph and writes it to path.
//
// The sample input fixes the observation width; its batch dimension is
// replaced by the dynamic batch axis. Nothing is written unless the whole
// graph builds successfully.
func Export(m *policy.Model, input *tensor.RawTensor, path string, opts ExportOptions) error {
	if opts.OpsetVersion == 0 {
		opts.OpsetVersion = defaultOpset
	}

	shape := input.Shape()
	if len(shape) != 2 || shape[1] != m.InFeatures() {
		return fmt.Errorf("sample input shape %v does not match policy input width %d", shape, m.InFeatures())
	}

	graph, err := buildGraph(m, opts)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}
	if opts.ConstantFolding {
		foldConstants(graph)
	}

	model := &ModelProto{
		IRVersion:       irVersion,
		OpsetImport:     []OperatorSetID{{Version: opts.OpsetVersion}},
		ProducerName:    producerName,
		ProducerVersion: producerVersionStr,
		ModelVersion:    1,
		Graph:           graph,
	}

	if err := os.WriteFile(path, Marshal(model), 0o644); err != nil { //nolint:gosec // G306: exported models are world-readable artifacts
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

// buildGraph lowers the traced policy graph to ONNX nodes: one Gemm per
// linear layer, one element-wise node per activation.
func buildGraph(m *policy.Model, opts ExportOptions) (*GraphProto, error) {
	g := &GraphProto{Name: "policy"}

	g.Inputs = append(g.Inputs, valueInfo(opts.InputName, opts.BatchDimName, m.InFeatures()))
	g.Outputs = append(g.Outputs, valueInfo(opts.OutputName, opts.BatchDimName, m.OutFeatures()))

	state := m.StateDict()
	spec := m.Graph()
	current := opts.InputName
	for i, layer := range spec {
		output := fmt.Sprintf("layers.%d.out", i)
		if i == len(spec)-1 {
			output = opts.OutputName
		}

		switch layer.Type {
		case policy.LayerLinear:
			weightName, biasName := policy.WeightName(i), policy.BiasName(i)
			for _, name := range []string{weightName, biasName} {
				init, err := initializer(name, state[name], opts.EmbedParams)
				if err != nil {
					return nil, err
				}
				g.Initializers = append(g.Initializers, init)
			}
			g.Nodes = append(g.Nodes, NodeProto{
				Name:    fmt.Sprintf("Gemm_%d", i),
				OpType:  "Gemm",
				Inputs:  []string{current, weightName, biasName},
				Outputs: []string{output},
				Attributes: []AttributeProto{
					{Name: "alpha", Type: AttributeProtoFloat, F: 1.0},
					{Name: "beta", Type: AttributeProtoFloat, F: 1.0},
					{Name: "transB", Type: AttributeProtoInt, I: 1},
				},
			})
		case policy.LayerReLU, policy.LayerTanh, policy.LayerELU, policy.LayerSigmoid:
			node := NodeProto{
				Name:    fmt.Sprintf("%s_%d", activationOp(layer.Type), i),
				OpType:  activationOp(layer.Type),
				Inputs:  []string{current},
				Outputs: []string{output},
			}
			if layer.Type == policy.LayerELU {
				node.Attributes = []AttributeProto{{Name: "alpha", Type: AttributeProtoFloat, F: 1.0}}
			}
			g.Nodes = append(g.Nodes, node)
		default:
			return nil, fmt.Errorf("layer %d: cannot lower layer type %q", i, layer.Type)
		}
		current = output
	}

	return g, nil
}

// activationOp maps traced activation types to ONNX operator names.
func activationOp(layerType string) string {
	switch layerType {
	case policy.LayerReLU:
		return "Relu"
	case policy.LayerTanh:
		return "Tanh"
	case policy.LayerELU:
		return "Elu"
	case policy.LayerSigmoid:
		return "Sigmoid"
	default:
		return ""
	}
}

// valueInfo builds a float32 [batch, features] tensor specification with a
// dynamic batch axis when batchDim is non-empty.
func valueInfo(name, batchDim string, features int) ValueInfoProto {
	batch := DimensionProto{DimValue: 1}
	if batchDim != "" {
		batch = DimensionProto{DimParam: batchDim}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{
			TensorType: &TensorTypeProto{
				ElemType: TensorProtoFloat,
				Shape: &TensorShapeProto{
					Dims: []DimensionProto{batch, {DimValue: int64(features)}},
				},
			},
		},
	}
}

// initializer builds the weight tensor entry for one parameter.
func initializer(name string, raw *tensor.RawTensor, embed bool) (TensorProto, error) {
	if raw == nil {
		return TensorProto{}, fmt.Errorf("missing parameter tensor %q", name)
	}

	dims := make([]int64, len(raw.Shape()))
	for i, d := range raw.Shape() {
		dims[i] = int64(d)
	}
	init := TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims}
	if embed {
		init.RawData = raw.Data()
	}
	return init, nil
}

// foldConstants removes statically-computable nodes. Traced MLP policies
// only ever produce Identity passthroughs to fold; anything heavier would
// need a real evaluator.
func foldConstants(g *GraphProto) {
	rename := make(map[string]string)
	nodes := g.Nodes[:0]
	for _, node := range g.Nodes {
		if node.OpType == "Identity" && len(node.Inputs) == 1 && len(node.Outputs) == 1 {
			rename[node.Outputs[0]] = node.Inputs[0]
			continue
		}
		nodes = append(nodes, node)
	}
	g.Nodes = nodes

	if len(rename) == 0 {
		return
	}
	resolve := func(name string) string {
		for {
			src, ok := rename[name]
			if !ok {
				return name
			}
			name = src
		}
	}

	// A graph output fed by a folded Identity keeps its declared name: the
	// surviving producer takes it over, and every consumer of that tensor
	// follows, so shared fan-out stays wired.
	alias := make(map[string]string)
	for i := range g.Outputs {
		name := g.Outputs[i].Name
		if origin := resolve(name); origin != name {
			alias[origin] = name
		}
	}
	rewrite := func(name string) string {
		name = resolve(name)
		if to, ok := alias[name]; ok {
			return to
		}
		return name
	}
	for i := range g.Nodes {
		for j, in := range g.Nodes[i].Inputs {
			g.Nodes[i].Inputs[j] = rewrite(in)
		}
		for j, out := range g.Nodes[i].Outputs {
			g.Nodes[i].Outputs[j] = rewrite(out)
		}
	}
}
