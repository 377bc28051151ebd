package autograd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Add returns a + b.
func Add(a, b *Tensor) *Tensor {
	sameShape("Add", a, b)
	data := floats.AddTo(make([]float64, a.Len()), a.Data, b.Data)
	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{g, g}
	}, a, b)
}

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor {
	sameShape("Sub", a, b)
	data := floats.SubTo(make([]float64, a.Len()), a.Data, b.Data)
	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{g, Neg(g)}
	}, a, b)
}

// Mul returns the element-wise product of a and b.
func Mul(a, b *Tensor) *Tensor {
	sameShape("Mul", a, b)
	data := floats.MulTo(make([]float64, a.Len()), a.Data, b.Data)
	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Mul(g, in[1]), Mul(g, in[0])}
	}, a, b)
}

// Div returns the element-wise quotient a / b.
func Div(a, b *Tensor) *Tensor {
	sameShape("Div", a, b)
	data := floats.DivTo(make([]float64, a.Len()), a.Data, b.Data)
	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		// d(a/b)/db = -(a/b)/b
		return []*Tensor{Div(g, in[1]), Neg(Mul(g, Div(out, in[1])))}
	}, a, b)
}

// Neg returns -a.
func Neg(a *Tensor) *Tensor {
	return Scale(a, -1)
}

// Scale returns s * a for a constant s.
func Scale(a *Tensor, s float64) *Tensor {
	data := floats.ScaleTo(make([]float64, a.Len()), s, a.Data)
	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Scale(g, s)}
	}, a)
}

// AddConst returns a + c for a constant c.
func AddConst(a *Tensor, c float64) *Tensor {
	data := make([]float64, a.Len())
	copy(data, a.Data)
	floats.AddConst(c, data)
	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{g}
	}, a)
}

// Exp returns the element-wise exponential of a.
func Exp(a *Tensor) *Tensor {
	data := make([]float64, a.Len())
	for i, v := range a.Data {
		data[i] = math.Exp(v)
	}

	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Mul(g, out)}
	}, a)
}

// Log returns the element-wise natural logarithm of a.
func Log(a *Tensor) *Tensor {
	data := make([]float64, a.Len())
	for i, v := range a.Data {
		data[i] = math.Log(v)
	}

	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Div(g, in[0])}
	}, a)
}

// Tanh returns the element-wise hyperbolic tangent of a.
func Tanh(a *Tensor) *Tensor {
	data := make([]float64, a.Len())
	for i, v := range a.Data {
		data[i] = math.Tanh(v)
	}

	return newOp(a.Rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		// 1 - tanh^2
		dy := AddConst(Neg(Mul(out, out)), 1)
		return []*Tensor{Mul(g, dy)}
	}, a)
}

// MatMul returns the matrix product a·b.
func MatMul(a, b *Tensor) *Tensor {
	if a.Cols != b.Rows {
		panic(fmt.Errorf("autograd: MatMul shape mismatch %dx%d · %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}

	data := make([]float64, a.Rows*b.Cols)
	dst := mat.NewDense(a.Rows, b.Cols, data)
	dst.Mul(mat.NewDense(a.Rows, a.Cols, a.Data), mat.NewDense(b.Rows, b.Cols, b.Data))
	return newOp(a.Rows, b.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{MatMul(g, T(in[1])), MatMul(T(in[0]), g)}
	}, a, b)
}

// T returns the transpose of a.
func T(a *Tensor) *Tensor {
	data := make([]float64, a.Len())
	for i := 0; i < a.Rows; i++ {
		for j := 0; j < a.Cols; j++ {
			data[j*a.Rows+i] = a.Data[i*a.Cols+j]
		}
	}

	return newOp(a.Cols, a.Rows, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{T(g)}
	}, a)
}

// Sum returns the 1x1 sum of all elements of a.
func Sum(a *Tensor) *Tensor {
	rows, cols := a.Rows, a.Cols
	return newOp(1, 1, []float64{floats.Sum(a.Data)}, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Expand(g, rows, cols)}
	}, a)
}

// Expand broadcasts a 1x1 tensor to rows x cols.
func Expand(a *Tensor, rows, cols int) *Tensor {
	if a.Len() != 1 {
		panic(fmt.Errorf("autograd: Expand of %dx%d tensor", a.Rows, a.Cols))
	}

	return ExpandCols(ExpandRows(a, rows), cols)
}

// SumRows reduces a (r x c) tensor to (1 x c) by summing over rows.
func SumRows(a *Tensor) *Tensor {
	data := make([]float64, a.Cols)
	for i := 0; i < a.Rows; i++ {
		floats.Add(data, a.Data[i*a.Cols:(i+1)*a.Cols])
	}

	rows := a.Rows
	return newOp(1, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{ExpandRows(g, rows)}
	}, a)
}

// ExpandRows repeats a (1 x c) tensor rows times.
func ExpandRows(a *Tensor, rows int) *Tensor {
	if a.Rows != 1 {
		panic(fmt.Errorf("autograd: ExpandRows of %dx%d tensor", a.Rows, a.Cols))
	}

	data := make([]float64, rows*a.Cols)
	for i := 0; i < rows; i++ {
		copy(data[i*a.Cols:], a.Data)
	}

	return newOp(rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{SumRows(g)}
	}, a)
}

// SumCols reduces a (r x c) tensor to (r x 1) by summing over columns.
func SumCols(a *Tensor) *Tensor {
	data := make([]float64, a.Rows)
	for i := range data {
		data[i] = floats.Sum(a.Data[i*a.Cols : (i+1)*a.Cols])
	}

	cols := a.Cols
	return newOp(a.Rows, 1, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{ExpandCols(g, cols)}
	}, a)
}

// ExpandCols repeats a (r x 1) tensor cols times along the columns.
func ExpandCols(a *Tensor, cols int) *Tensor {
	if a.Cols != 1 {
		panic(fmt.Errorf("autograd: ExpandCols of %dx%d tensor", a.Rows, a.Cols))
	}

	data := make([]float64, a.Rows*cols)
	for i, v := range a.Data {
		floats.AddConst(v, data[i*cols:(i+1)*cols])
	}

	return newOp(a.Rows, cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{SumCols(g)}
	}, a)
}

// AddRow adds the (1 x c) row vector b to every row of a.
func AddRow(a, b *Tensor) *Tensor {
	return Add(a, ExpandRows(b, a.Rows))
}

// MulScalar multiplies every element of a by the 1x1 tensor s.
func MulScalar(a, s *Tensor) *Tensor {
	return Mul(a, Expand(s, a.Rows, a.Cols))
}

// SumSquares returns the 1x1 sum of squared elements of a.
func SumSquares(a *Tensor) *Tensor {
	return Sum(Mul(a, a))
}

// LogSumExpRows returns the (r x 1) row-wise log-sum-exp of a.
func LogSumExpRows(a *Tensor) *Tensor {
	data := make([]float64, a.Rows)
	for i := range data {
		data[i] = floats.LogSumExp(a.Data[i*a.Cols : (i+1)*a.Cols])
	}

	cols := a.Cols
	return newOp(a.Rows, 1, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		softmax := Exp(Sub(in[0], ExpandCols(out, cols)))
		return []*Tensor{Mul(ExpandCols(g, cols), softmax)}
	}, a)
}

// LogSoftmax normalizes each row of a into log-probabilities.
func LogSoftmax(a *Tensor) *Tensor {
	return Sub(a, ExpandCols(LogSumExpRows(a), a.Cols))
}

// Softmax normalizes each row of a into probabilities.
func Softmax(a *Tensor) *Tensor {
	return Exp(LogSoftmax(a))
}

// Gather selects rows ids of a, producing a (len(ids) x c) tensor.
// It is used as an embedding lookup.
func Gather(a *Tensor, ids []int) *Tensor {
	data := make([]float64, len(ids)*a.Cols)
	for i, id := range ids {
		copy(data[i*a.Cols:], a.Data[id*a.Cols:(id+1)*a.Cols])
	}

	rows := a.Rows
	return newOp(len(ids), a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{ScatterRows(g, ids, rows)}
	}, a)
}

// ScatterRows is the adjoint of Gather: row i of a is added to row ids[i]
// of a (rows x c) result.
func ScatterRows(a *Tensor, ids []int, rows int) *Tensor {
	data := make([]float64, rows*a.Cols)
	for i, id := range ids {
		floats.Add(data[id*a.Cols:(id+1)*a.Cols], a.Data[i*a.Cols:(i+1)*a.Cols])
	}

	return newOp(rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Gather(g, ids)}
	}, a)
}

// Pick selects a[i, idx[i]] for every row, producing an (r x 1) tensor.
func Pick(a *Tensor, idx []int) *Tensor {
	if len(idx) != a.Rows {
		panic(fmt.Errorf("autograd: Pick with %d indices on %d rows", len(idx), a.Rows))
	}

	data := make([]float64, a.Rows)
	for i, j := range idx {
		data[i] = a.Data[i*a.Cols+j]
	}

	cols := a.Cols
	return newOp(a.Rows, 1, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Place(g, idx, cols)}
	}, a)
}

// Place is the adjoint of Pick: it returns an (r x cols) tensor of zeros with
// a[i] written at column idx[i] of row i.
func Place(a *Tensor, idx []int, cols int) *Tensor {
	data := make([]float64, a.Rows*cols)
	for i, j := range idx {
		data[i*cols+j] = a.Data[i]
	}

	return newOp(a.Rows, cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Pick(g, idx)}
	}, a)
}

// Row selects row i of a as a (1 x c) tensor.
func Row(a *Tensor, i int) *Tensor {
	rows := a.Rows
	return newOp(1, a.Cols, a.RowData(i), func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{PadRow(g, i, rows)}
	}, a)
}

// PadRow is the adjoint of Row: a (1 x c) tensor placed at row i of a
// (rows x c) tensor of zeros.
func PadRow(a *Tensor, i, rows int) *Tensor {
	data := make([]float64, rows*a.Cols)
	copy(data[i*a.Cols:], a.Data)
	return newOp(rows, a.Cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{Row(g, i)}
	}, a)
}

// SliceCols selects columns [off, off+width) of a.
func SliceCols(a *Tensor, off, width int) *Tensor {
	if off < 0 || off+width > a.Cols {
		panic(fmt.Errorf("autograd: SliceCols [%d, %d) of %d columns", off, off+width, a.Cols))
	}

	data := make([]float64, a.Rows*width)
	for i := 0; i < a.Rows; i++ {
		copy(data[i*width:(i+1)*width], a.Data[i*a.Cols+off:])
	}

	cols := a.Cols
	return newOp(a.Rows, width, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{PadCols(g, off, cols)}
	}, a)
}

// PadCols is the adjoint of SliceCols: a is written at columns
// [off, off+a.Cols) of a (r x cols) tensor of zeros.
func PadCols(a *Tensor, off, cols int) *Tensor {
	data := make([]float64, a.Rows*cols)
	for i := 0; i < a.Rows; i++ {
		copy(data[i*cols+off:], a.Data[i*a.Cols:(i+1)*a.Cols])
	}

	width := a.Cols
	return newOp(a.Rows, cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		return []*Tensor{SliceCols(g, off, width)}
	}, a)
}

// ConcatCols joins tensors with equal row counts side by side.
func ConcatCols(xs ...*Tensor) *Tensor {
	rows, cols := xs[0].Rows, 0
	for _, x := range xs {
		if x.Rows != rows {
			panic(fmt.Errorf("autograd: ConcatCols row mismatch %d vs %d", x.Rows, rows))
		}
		cols += x.Cols
	}

	data := make([]float64, rows*cols)
	offsets := make([]int, len(xs))
	off := 0
	for k, x := range xs {
		offsets[k] = off
		for i := 0; i < rows; i++ {
			copy(data[i*cols+off:], x.Data[i*x.Cols:(i+1)*x.Cols])
		}
		off += x.Cols
	}

	return newOp(rows, cols, data, func(g *Tensor, in []*Tensor, out *Tensor) []*Tensor {
		grads := make([]*Tensor, len(in))
		for k, x := range in {
			grads[k] = SliceCols(g, offsets[k], x.Cols)
		}
		return grads
	}, xs...)
}
