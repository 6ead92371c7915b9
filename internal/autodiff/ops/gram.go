package ops

import "github.com/born-ml/stylize/internal/tensor"

// GramOp records G = M·Mᵀ for a [1, C, H, W] feature map viewed as M = [C, H·W].
//
// Backward pass:
//   - dM = (dG + dGᵀ)·M
type GramOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewGramOp creates a new GramOp.
func NewGramOp(input, output *tensor.RawTensor) *GramOp {
	return &GramOp{input: input, output: output}
}

// Inputs returns the feature map.
func (op *GramOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the [C, C] Gram matrix.
func (op *GramOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the feature map gradient.
func (op *GramOp) Backward(outputGrad *tensor.RawTensor, backend tensor.GradBackend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.GramBackward(op.input, outputGrad)}
}
