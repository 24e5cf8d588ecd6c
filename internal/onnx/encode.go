package onnx

import (
	"encoding/binary"
	"math"
)

// Marshal encodes a ModelProto into protobuf wire format.
func Marshal(m *ModelProto) []byte {
	e := &encoder{}
	e.encodeModel(m)
	return e.buf
}

// encoder implements a minimal protobuf wire format encoder, the mirror of
// the decoder in parser.go. Zero-valued scalar fields are omitted, as
// proto3 serializers do.
type encoder struct {
	buf []byte
}

func (e *encoder) encodeModel(m *ModelProto) {
	e.varintField(1, m.IRVersion)
	e.stringField(2, m.ProducerName)
	e.stringField(3, m.ProducerVersion)
	e.stringField(4, m.Domain)
	e.varintField(5, m.ModelVersion)
	e.stringField(6, m.DocString)
	if m.Graph != nil {
		e.messageField(7, func(sub *encoder) { sub.encodeGraph(m.Graph) })
	}
	for i := range m.OpsetImport {
		opset := m.OpsetImport[i]
		e.messageField(8, func(sub *encoder) {
			sub.stringField(1, opset.Domain)
			sub.varintField(2, opset.Version)
		})
	}
	for i := range m.MetadataProps {
		entry := m.MetadataProps[i]
		e.messageField(14, func(sub *encoder) {
			sub.stringField(1, entry.Key)
			sub.stringField(2, entry.Value)
		})
	}
}

func (e *encoder) encodeGraph(g *GraphProto) {
	for i := range g.Nodes {
		node := &g.Nodes[i]
		e.messageField(1, func(sub *encoder) { sub.encodeNode(node) })
	}
	e.stringField(2, g.Name)
	for i := range g.Initializers {
		init := &g.Initializers[i]
		e.messageField(5, func(sub *encoder) { sub.encodeTensor(init) })
	}
	for i := range g.Inputs {
		vi := &g.Inputs[i]
		e.messageField(11, func(sub *encoder) { sub.encodeValueInfo(vi) })
	}
	for i := range g.Outputs {
		vi := &g.Outputs[i]
		e.messageField(12, func(sub *encoder) { sub.encodeValueInfo(vi) })
	}
}

func (e *encoder) encodeNode(n *NodeProto) {
	for _, in := range n.Inputs {
		e.stringField(1, in)
	}
	for _, out := range n.Outputs {
		e.stringField(2, out)
	}
	e.stringField(3, n.Name)
	e.stringField(4, n.OpType)
	for i := range n.Attributes {
		attr := &n.Attributes[i]
		e.messageField(5, func(sub *encoder) { sub.encodeAttribute(attr) })
	}
	e.stringField(7, n.Domain)
}

func (e *encoder) encodeTensor(t *TensorProto) {
	if len(t.Dims) > 0 {
		// dims is a packed repeated int64
		sub := &encoder{}
		for _, d := range t.Dims {
			sub.uvarint(uint64(d)) //nolint:gosec // G115: tensor dims are non-negative
		}
		e.bytesField(1, sub.buf)
	}
	e.varintField(2, int64(t.DataType))
	e.stringField(8, t.Name)
	if len(t.RawData) > 0 {
		e.bytesField(9, t.RawData)
	}
}

func (e *encoder) encodeValueInfo(vi *ValueInfoProto) {
	e.stringField(1, vi.Name)
	if vi.Type == nil || vi.Type.TensorType == nil {
		return
	}
	tt := vi.Type.TensorType
	e.messageField(2, func(sub *encoder) {
		sub.messageField(1, func(sub2 *encoder) {
			sub2.varintField(1, int64(tt.ElemType))
			if tt.Shape != nil {
				sub2.messageField(2, func(sub3 *encoder) {
					for _, dim := range tt.Shape.Dims {
						sub3.messageField(1, func(sub4 *encoder) {
							if dim.DimParam != "" {
								sub4.stringField(2, dim.DimParam)
							} else {
								sub4.varintField(1, dim.DimValue)
							}
						})
					}
				})
			}
		})
	})
}

func (e *encoder) encodeAttribute(a *AttributeProto) {
	e.stringField(1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		e.floatField(2, a.F)
	case AttributeProtoInt:
		e.varintField(3, a.I)
	case AttributeProtoString:
		e.bytesField(4, a.S)
	}
	e.varintField(20, int64(a.Type))
}

// Wire-level helpers.

func (e *encoder) uvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) tag(fieldNum, wireType int) {
	e.uvarint(uint64(fieldNum)<<3 | uint64(wireType)) //nolint:gosec // G115: field numbers are small constants
}

// varintField writes a varint field, omitting zero values.
func (e *encoder) varintField(fieldNum int, v int64) {
	if v == 0 {
		return
	}
	e.tag(fieldNum, wireVarint)
	e.uvarint(uint64(v)) //nolint:gosec // G115: values written here are non-negative
}

// stringField writes a length-delimited string field, omitting empty values.
func (e *encoder) stringField(fieldNum int, s string) {
	if s == "" {
		return
	}
	e.bytesField(fieldNum, []byte(s))
}

func (e *encoder) bytesField(fieldNum int, b []byte) {
	e.tag(fieldNum, wireBytes)
	e.uvarint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// floatField writes a 32-bit fixed field. Written even when zero: a float
// attribute's value is meaningful either way.
func (e *encoder) floatField(fieldNum int, f float32) {
	e.tag(fieldNum, wire32Bit)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(f))
}

// messageField writes an embedded message field.
func (e *encoder) messageField(fieldNum int, encode func(*encoder)) {
	sub := &encoder{}
	encode(sub)
	e.bytesField(fieldNum, sub.buf)
}
