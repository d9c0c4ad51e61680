package model

import "fmt"

// Tensor is a dense float32 tensor in row-major order. Image batches use
// NCHW layout.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// Validate checks that the shape is positive and matches the data length.
func (t *Tensor) Validate() error {
	if t == nil || len(t.Shape) == 0 {
		return fmt.Errorf("tensor has no shape")
	}
	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("tensor shape %v has a non-positive dimension", t.Shape)
		}
		n *= d
	}
	if n != len(t.Data) {
		return fmt.Errorf("tensor shape %v needs %d values, has %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// BatchSize returns the leading dimension.
func (t *Tensor) BatchSize() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Item returns the data of batch item i without copying.
func (t *Tensor) Item(i int) []float32 {
	size := len(t.Data) / t.BatchSize()
	return t.Data[i*size : (i+1)*size]
}
