package ops

import "github.com/born-ml/stylize/internal/tensor"

// ScaleOp represents output = factor·x for a constant factor.
type ScaleOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
	factor float32
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(input, output *tensor.RawTensor, factor float32) *ScaleOp {
	return &ScaleOp{input: input, output: output, factor: factor}
}

// Inputs returns [x].
func (op *ScaleOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns factor·x.
func (op *ScaleOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward returns factor·outputGrad.
func (op *ScaleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.GradBackend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Scale(outputGrad, op.factor)}
}
