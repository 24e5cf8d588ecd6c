// Package policy reads, writes and runs traced control policies: serialized
// MLP computation graphs produced by the RL training pipeline. Files carry
// the conventional .pt extension.
//
// File layout:
//
//	magic "RLPT" | format version (uint32 LE) | header size (uint64 LE) |
//	header JSON | zero padding to 64-byte alignment | raw tensor data
//
// The header describes the traced graph (ordered layer specs), the tensor
// table (name/dtype/shape/offset/size) and a SHA-256 checksum of the data
// section.
package policy

import (
	"fmt"
	"time"
)

// Format constants.
const (
	MagicBytes      = "RLPT"
	FormatVersion   = 1
	HeaderAlignment = 64 // tensor data is 64-byte aligned
	MaxHeaderSize   = 16 * 1024 * 1024
)

// Layer type strings used in the traced graph.
const (
	LayerLinear  = "linear"
	LayerReLU    = "relu"
	LayerTanh    = "tanh"
	LayerELU     = "elu"
	LayerSigmoid = "sigmoid"
)

// Data type strings used in the tensor table.
const (
	DTypeFloat32 = "float32"
)

// Header is the JSON header of a traced policy file.
type Header struct {
	FormatVersion int               `json:"format_version"`     // version of the container format
	Producer      string            `json:"producer,omitempty"` // pipeline that traced the policy
	CreatedAt     time.Time         `json:"created_at"`
	Graph         []LayerSpec       `json:"graph"`              // ordered layer specs
	Tensors       []TensorMeta      `json:"tensors"`            // tensor table
	Checksum      string            `json:"checksum,omitempty"` // hex SHA-256 of the data section
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// LayerSpec describes one node of the traced graph.
// Linear layers carry in/out widths; activations carry only their type.
type LayerSpec struct {
	Type string `json:"type"`
	In   int    `json:"in,omitempty"`
	Out  int    `json:"out,omitempty"`
}

// TensorMeta describes one entry of the tensor table.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}

// alignUp rounds n up to the next multiple of HeaderAlignment.
func alignUp(n int64) int64 {
	return (n + HeaderAlignment - 1) / HeaderAlignment * HeaderAlignment
}

// WeightName returns the tensor-table name for a linear layer's weight.
func WeightName(layer int) string {
	return fmt.Sprintf("layers.%d.weight", layer)
}

// BiasName returns the tensor-table name for a linear layer's bias.
func BiasName(layer int) string {
	return fmt.Sprintf("layers.%d.bias", layer)
}
