package tensor

import (
	"errors"
	"fmt"
	"math"
)

type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
)

var (
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrDTypeMismatch = errors.New("tensor dtype mismatch")
	ErrInvalidShape  = errors.New("invalid tensor shape")
)

// Tensor is a dense multi-dimensional array of weights. Data is stored flat
// in row-major order; DType records the precision the artifact carries on
// the wire, while arithmetic runs in float64.
type Tensor struct {
	Shape []int     `json:"shape"`
	DType DType     `json:"dtype"`
	Data  []float64 `json:"data"`
}

func New(shape []int, dtype DType) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidShape, shape)
		}
		n *= d
	}

	return &Tensor{
		Shape: append([]int(nil), shape...),
		DType: dtype,
		Data:  make([]float64, n),
	}, nil
}

func FromData(shape []int, dtype DType, data []float64) (*Tensor, error) {
	t, err := New(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != len(t.Data) {
		return nil, fmt.Errorf("%w: shape %v wants %d values, got %d", ErrInvalidShape, shape, len(t.Data), len(data))
	}
	copy(t.Data, data)

	return t, nil
}

func ZerosLike(t *Tensor) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), t.Shape...),
		DType: t.DType,
		Data:  make([]float64, len(t.Data)),
	}
}

func (t *Tensor) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy detached from the receiver: mutating the
// original afterwards must not change the copy.
func (t *Tensor) Clone() *Tensor {
	c := ZerosLike(t)
	copy(c.Data, t.Data)

	return c
}

func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}

	return true
}

// Add accumulates o into the receiver elementwise.
func (t *Tensor) Add(o *Tensor) error {
	if !t.SameShape(o) {
		return fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, t.Shape, o.Shape)
	}
	for i := range t.Data {
		t.Data[i] += o.Data[i]
	}

	return nil
}

// Sub returns current − baseline as a fresh tensor.
func (t *Tensor) Sub(o *Tensor) (*Tensor, error) {
	if !t.SameShape(o) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, t.Shape, o.Shape)
	}
	d := ZerosLike(t)
	for i := range t.Data {
		d.Data[i] = t.Data[i] - o.Data[i]
	}

	return d, nil
}

func (t *Tensor) Scale(f float64) {
	for i := range t.Data {
		t.Data[i] *= f
	}
}

func (t *Tensor) L2Norm() float64 {
	var sum float64
	for _, v := range t.Data {
		sum += v * v
	}

	return math.Sqrt(sum)
}

// ClipNorm scales the tensor in place by threshold/‖t‖₂ when its L2 norm
// exceeds the threshold. Tensors already under the threshold are left
// untouched, bit for bit.
func (t *Tensor) ClipNorm(threshold float64) {
	norm := t.L2Norm()
	if norm > threshold {
		t.Scale(threshold / norm)
	}
}

func (t *Tensor) Equal(o *Tensor) bool {
	if !t.SameShape(o) || t.DType != o.DType {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != o.Data[i] {
			return false
		}
	}

	return true
}
