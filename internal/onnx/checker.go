package onnx

import (
	"fmt"
)

// Check loads an exported artifact and runs a structural validation pass:
// the graph must exist, declare a default-domain opset, reference only
// resolvable tensors, and carry initializer payloads consistent with their
// declared dimensions.
//
// Check is diagnostic: the conversion pipeline treats a failure here as a
// warning, not as an export failure.
func Check(path string) error {
	model, err := ParseFile(path)
	if err != nil {
		return err
	}
	return CheckModel(model)
}

// CheckModel validates a parsed model in memory.
func CheckModel(model *ModelProto) error {
	if model.IRVersion == 0 {
		return fmt.Errorf("model declares no IR version")
	}
	if model.Graph == nil {
		return fmt.Errorf("model has no graph")
	}

	opset := int64(0)
	for _, o := range model.OpsetImport {
		if o.Domain == "" || o.Domain == "ai.onnx" {
			opset = o.Version
			break
		}
	}
	if opset == 0 {
		return fmt.Errorf("model declares no default-domain opset")
	}

	return checkGraph(model.Graph)
}

func checkGraph(g *GraphProto) error {
	known := make(map[string]bool)
	for i := range g.Inputs {
		if g.Inputs[i].Name == "" {
			return fmt.Errorf("graph input %d has no name", i)
		}
		known[g.Inputs[i].Name] = true
	}
	for i := range g.Initializers {
		init := &g.Initializers[i]
		if init.Name == "" {
			return fmt.Errorf("initializer %d has no name", i)
		}
		if err := checkInitializer(init); err != nil {
			return err
		}
		known[init.Name] = true
	}

	// Nodes appear in topological order; every input must resolve against
	// graph inputs, initializers, or an earlier node's output.
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.OpType == "" {
			return fmt.Errorf("node %d (%s) has no op_type", i, node.Name)
		}
		if len(node.Outputs) == 0 {
			return fmt.Errorf("node %d (%s %s) has no outputs", i, node.OpType, node.Name)
		}
		for _, in := range node.Inputs {
			if !known[in] {
				return fmt.Errorf("node %d (%s %s) references unknown tensor %q", i, node.OpType, node.Name, in)
			}
		}
		for _, out := range node.Outputs {
			known[out] = true
		}
	}

	if len(g.Outputs) == 0 {
		return fmt.Errorf("graph has no outputs")
	}
	for i := range g.Outputs {
		if !known[g.Outputs[i].Name] {
			return fmt.Errorf("graph output %q is never produced", g.Outputs[i].Name)
		}
	}
	return nil
}

// checkInitializer validates that an embedded payload matches the declared
// dims. Initializers without payloads (externally bound weights) pass.
func checkInitializer(init *TensorProto) error {
	if len(init.RawData) == 0 {
		return nil
	}
	if init.DataType != TensorProtoFloat {
		return fmt.Errorf("initializer %q: unsupported data type %d", init.Name, init.DataType)
	}

	elements := int64(1)
	for _, d := range init.Dims {
		if d <= 0 {
			return fmt.Errorf("initializer %q: invalid dimension %d", init.Name, d)
		}
		elements *= d
	}
	if want := elements * 4; int64(len(init.RawData)) != want {
		return fmt.Errorf("initializer %q: payload is %d bytes, dims %v need %d",
			init.Name, len(init.RawData), init.Dims, want)
	}
	return nil
}

// ModelInfo is a summary of an exported artifact.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	InputNames      []string
	OutputNames     []string
	NodeCount       int
	WeightCount     int
}

// Info extracts a summary from an artifact without validating it.
func Info(path string) (*ModelInfo, error) {
	model, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	info := &ModelInfo{
		IRVersion:       model.IRVersion,
		ProducerName:    model.ProducerName,
		ProducerVersion: model.ProducerVersion,
	}
	for _, o := range model.OpsetImport {
		if o.Domain == "" || o.Domain == "ai.onnx" {
			info.OpsetVersion = o.Version
			break
		}
	}

	if model.Graph != nil {
		initNames := make(map[string]bool)
		for i := range model.Graph.Initializers {
			initNames[model.Graph.Initializers[i].Name] = true
		}
		for i := range model.Graph.Inputs {
			if !initNames[model.Graph.Inputs[i].Name] {
				info.InputNames = append(info.InputNames, model.Graph.Inputs[i].Name)
			}
		}
		for i := range model.Graph.Outputs {
			info.OutputNames = append(info.OutputNames, model.Graph.Outputs[i].Name)
		}
		info.NodeCount = len(model.Graph.Nodes)
		info.WeightCount = len(model.Graph.Initializers)
	}
	return info, nil
}
