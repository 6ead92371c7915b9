package ops

import "github.com/born-ml/stylize/internal/tensor"

// SquaredDiffOp represents output = Σ (a-b)², a scalar.
//
// Backward pass:
//   - grad_a = 2·g·(a-b)
//   - grad_b = -grad_a
type SquaredDiffOp struct {
	a, b   *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSquaredDiffOp creates a new SquaredDiffOp.
func NewSquaredDiffOp(a, b, output *tensor.RawTensor) *SquaredDiffOp {
	return &SquaredDiffOp{a: a, b: b, output: output}
}

// Inputs returns [a, b].
func (op *SquaredDiffOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.a, op.b}
}

// Output returns the scalar sum.
func (op *SquaredDiffOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for both operands.
func (op *SquaredDiffOp) Backward(outputGrad *tensor.RawTensor, backend tensor.GradBackend) []*tensor.RawTensor {
	gradA := backend.SquaredDiffBackward(op.a, op.b, outputGrad)
	return []*tensor.RawTensor{gradA, backend.Scale(gradA, -1)}
}
