package autograd

import (
	"github.com/pkg/errors"
)

// ErrNotScalar is returned when Grad is called on a tensor with more than one element.
var ErrNotScalar = errors.New("autograd: gradient root must be a 1x1 tensor")

// Grad returns the gradient of the scalar y with respect to each tensor in wrt.
//
// If createGraph is false the returned gradients are constants. If it is true
// they are graph nodes which depend on every differentiable input of the
// computation (including tensors not listed in wrt), and may themselves be
// differentiated by a later call to Grad.
//
// Tensors in wrt that y does not depend on receive a zero gradient.
func Grad(y *Tensor, wrt []*Tensor, createGraph bool) ([]*Tensor, error) {
	if y.Len() != 1 {
		return nil, errors.Wrapf(ErrNotScalar, "got %dx%d", y.Rows, y.Cols)
	}

	targets := make(map[*Tensor]bool, len(wrt))
	for _, w := range wrt {
		targets[w] = true
	}

	order, relevant := topoSort(y, targets)
	grads := make(map[*Tensor]*Tensor, len(order))
	grads[y] = Scalar(1)

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := grads[node]
		if g == nil || node.backward == nil {
			continue
		}

		in, out := node.parents, node
		if !createGraph {
			in = detachAll(in)
			out = node.Detach()
			g = g.Detach()
		}

		parentGrads := node.backward(g, in, out)
		for k, p := range node.parents {
			if !relevant[p] || parentGrads[k] == nil {
				continue
			}

			pg := parentGrads[k]
			if !createGraph {
				pg = pg.Detach()
			}

			if acc, ok := grads[p]; ok {
				grads[p] = Add(acc, pg)
			} else {
				grads[p] = pg
			}
		}
	}

	result := make([]*Tensor, len(wrt))
	for i, w := range wrt {
		if g, ok := grads[w]; ok {
			result[i] = g
		} else {
			result[i] = Zeros(w.Rows, w.Cols)
		}
	}

	return result, nil
}

// topoSort returns the differentiable nodes reachable from root in
// topological order (parents before children), along with the subset of
// them from which some target is reachable.
func topoSort(root *Tensor, targets map[*Tensor]bool) ([]*Tensor, map[*Tensor]bool) {
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	relevant := make(map[*Tensor]bool)

	type frame struct {
		node *Tensor
		next int
	}

	if !root.requiresGrad {
		return nil, relevant
	}

	stack := []frame{{node: root}}
	visited[root] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.node.parents) {
			p := top.node.parents[top.next]
			top.next++
			if p.requiresGrad && !visited[p] {
				visited[p] = true
				stack = append(stack, frame{node: p})
			}
			continue
		}

		node := top.node
		stack = stack[:len(stack)-1]
		if targets[node] {
			relevant[node] = true
		}
		for _, p := range node.parents {
			if relevant[p] {
				relevant[node] = true
				break
			}
		}

		if relevant[node] {
			order = append(order, node)
		}
	}

	return order, relevant
}

func detachAll(ts []*Tensor) []*Tensor {
	result := make([]*Tensor, len(ts))
	for i, t := range ts {
		result[i] = t.Detach()
	}

	return result
}
