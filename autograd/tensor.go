// Package autograd implements a small reverse-mode automatic differentiation
// engine over row-major float64 matrices.
//
// Every differentiable operation records its parents and a backward function
// that is itself written in terms of differentiable operations. As a result,
// gradients computed with Grad(..., createGraph=true) are ordinary graph nodes
// and may be differentiated again. This is what allows a control-variate
// network to be trained against a statistic of another model's gradient.
package autograd

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// backwardFn maps the gradient g of an operation's output to the gradients of
// each of its inputs. in and out are either the live graph nodes (when building
// a differentiable gradient graph) or detached views of them.
type backwardFn func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor

// Tensor is a matrix node in a dynamically built computation graph.
//
// The Data slice of a Tensor that is part of a graph must not be modified,
// with the exception of parameters, which are updated by optimizers between
// graph constructions.
type Tensor struct {
	Rows, Cols int
	Data       []float64

	requiresGrad bool
	parents      []*Tensor
	backward     backwardFn
}

// New returns a constant (non-differentiable) tensor wrapping data.
func New(rows, cols int, data []float64) *Tensor {
	if len(data) != rows*cols {
		panic(fmt.Errorf("autograd: data has %d elements, expected %dx%d", len(data), rows, cols))
	}

	return &Tensor{Rows: rows, Cols: cols, Data: data}
}

// Param returns a leaf tensor that gradients can be taken with respect to.
func Param(rows, cols int, data []float64) *Tensor {
	t := New(rows, cols, data)
	t.requiresGrad = true
	return t
}

// Zeros returns a constant tensor of zeros.
func Zeros(rows, cols int) *Tensor {
	return New(rows, cols, make([]float64, rows*cols))
}

// Full returns a constant tensor with every element equal to v.
func Full(rows, cols int, v float64) *Tensor {
	data := make([]float64, rows*cols)
	floats.AddConst(v, data)
	return New(rows, cols, data)
}

// Scalar returns a constant 1x1 tensor.
func Scalar(v float64) *Tensor {
	return New(1, 1, []float64{v})
}

// RequiresGrad reports whether gradients flow through t.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// Len is the number of elements in t.
func (t *Tensor) Len() int {
	return t.Rows * t.Cols
}

// At returns the element at row i, column j.
func (t *Tensor) At(i, j int) float64 {
	return t.Data[i*t.Cols+j]
}

// Value returns the single element of a 1x1 tensor.
func (t *Tensor) Value() float64 {
	if t.Len() != 1 {
		panic(fmt.Errorf("autograd: Value called on %dx%d tensor", t.Rows, t.Cols))
	}

	return t.Data[0]
}

// RowData returns a copy of the ith row of t.
func (t *Tensor) RowData(i int) []float64 {
	row := make([]float64, t.Cols)
	copy(row, t.Data[i*t.Cols:(i+1)*t.Cols])
	return row
}

// Detach returns a constant view of t sharing the same data.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{Rows: t.Rows, Cols: t.Cols, Data: t.Data}
}

// Clone returns a constant deep copy of t.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.Data))
	copy(data, t.Data)
	return New(t.Rows, t.Cols, data)
}

// IsFinite reports whether every element of t is neither NaN nor ±Inf.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		if v-v != 0 {
			return false
		}
	}

	return true
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%dx%d, grad=%v)", t.Rows, t.Cols, t.requiresGrad)
}

// newOp allocates the output of an operation and, if any input requires
// gradients, attaches it to the graph.
func newOp(rows, cols int, data []float64, fn backwardFn, parents ...*Tensor) *Tensor {
	out := New(rows, cols, data)
	for _, p := range parents {
		if p.requiresGrad {
			out.requiresGrad = true
			out.parents = parents
			out.backward = fn
			break
		}
	}

	return out
}

func sameShape(op string, a, b *Tensor) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic(fmt.Errorf("autograd: %s shape mismatch %dx%d vs %dx%d", op, a.Rows, a.Cols, b.Rows, b.Cols))
	}
}
