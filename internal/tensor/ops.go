package tensor

import (
	"fmt"
	"math"
)

// MatMulT computes x @ w.T for 2D float32 tensors.
//
// x has shape [batch, in], w has shape [out, in] (the layout linear layer
// weights are stored in), and the result has shape [batch, out].
func MatMulT(x, w *RawTensor) (*RawTensor, error) {
	if x.DType() != Float32 || w.DType() != Float32 {
		return nil, fmt.Errorf("matmul requires float32 operands, got %s and %s", x.DType(), w.DType())
	}
	xs, ws := x.Shape(), w.Shape()
	if len(xs) != 2 || len(ws) != 2 {
		return nil, fmt.Errorf("matmul requires 2D operands, got shapes %v and %v", xs, ws)
	}
	if xs[1] != ws[1] {
		return nil, fmt.Errorf("inner dimensions do not match: %v @ %v.T", xs, ws)
	}

	batch, in, out := xs[0], xs[1], ws[0]
	result, err := NewRaw(Shape{batch, out}, Float32)
	if err != nil {
		return nil, err
	}

	xd, wd, rd := x.AsFloat32(), w.AsFloat32(), result.AsFloat32()
	for b := 0; b < batch; b++ {
		for o := 0; o < out; o++ {
			var sum float32
			for i := 0; i < in; i++ {
				sum += xd[b*in+i] * wd[o*in+i]
			}
			rd[b*out+o] = sum
		}
	}
	return result, nil
}

// AddBias adds a bias vector of shape [features] to x of shape
// [batch, features], in place.
func AddBias(x, bias *RawTensor) error {
	xs, bs := x.Shape(), bias.Shape()
	if len(xs) != 2 || len(bs) != 1 || xs[1] != bs[0] {
		return fmt.Errorf("cannot add bias %v to tensor %v", bs, xs)
	}

	xd, bd := x.AsFloat32(), bias.AsFloat32()
	features := xs[1]
	for b := 0; b < xs[0]; b++ {
		for i := 0; i < features; i++ {
			xd[b*features+i] += bd[i]
		}
	}
	return nil
}

// ReLU returns max(x, 0) element-wise.
func ReLU(x *RawTensor) *RawTensor {
	return mapUnary(x, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
}

// Tanh returns tanh(x) element-wise.
func Tanh(x *RawTensor) *RawTensor {
	return mapUnary(x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// Sigmoid returns 1/(1+exp(-x)) element-wise.
func Sigmoid(x *RawTensor) *RawTensor {
	return mapUnary(x, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// ELU returns x for x > 0 and exp(x)-1 otherwise (alpha = 1).
func ELU(x *RawTensor) *RawTensor {
	return mapUnary(x, func(v float32) float32 {
		if v > 0 {
			return v
		}
		return float32(math.Exp(float64(v)) - 1)
	})
}

// mapUnary applies f element-wise, returning a fresh tensor so callers'
// inputs are never mutated.
func mapUnary(x *RawTensor, f func(float32) float32) *RawTensor {
	result := x.Clone()
	data := result.AsFloat32()
	for i, v := range data {
		data[i] = f(v)
	}
	return result
}
