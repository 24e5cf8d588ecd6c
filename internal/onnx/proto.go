// Package onnx serializes traced policies into the ONNX interchange format
// and structurally verifies the resulting artifacts. The protobuf wire
// format is encoded and decoded by hand; only the subset of messages an
// exported MLP needs is modeled.
package onnx

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64
	OpsetImport     []OperatorSetID
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []StringStringEntry
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name         string
	Nodes        []NodeProto
	Inputs       []ValueInfoProto
	Outputs      []ValueInfoProto
	Initializers []TensorProto // weight tensors
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string
	OpType     string // e.g. "Gemm", "Tanh"
	Inputs     []string
	Outputs    []string
	Attributes []AttributeProto
	Domain     string
}

// TensorProto represents a weight/initializer tensor.
type TensorProto struct {
	Name     string
	DataType int32
	Dims     []int64
	RawData  []byte
}

// ValueInfoProto describes an input/output tensor specification.
type ValueInfoProto struct {
	Name string
	Type *TypeProto
}

// TypeProto describes a tensor type.
type TypeProto struct {
	TensorType *TensorTypeProto
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto is one dimension: either a static size or a named
// dynamic dimension (e.g. "batch_size").
type DimensionProto struct {
	DimValue int64
	DimParam string
}

// AttributeProto represents a node attribute.
type AttributeProto struct {
	Name string
	Type int32
	F    float32
	I    int64
	S    []byte
}

// OperatorSetID identifies an opset version.
type OperatorSetID struct {
	Domain  string // empty for the default ai.onnx domain
	Version int64
}

// StringStringEntry represents key-value metadata.
type StringStringEntry struct {
	Key   string
	Value string
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined = 0
	TensorProtoFloat     = 1 // float32
	TensorProtoInt64     = 7
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1
	AttributeProtoInt       = 2
	AttributeProtoString    = 3
)
