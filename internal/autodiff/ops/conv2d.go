package ops

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// Conv2DOp records a 2D convolution operation for autodiff.
//
// Forward: output = Conv2D(input, kernel, stride, padding)
//
// Backward (gradients):
//   - d_input: "transposed convolution" of d_output with kernel
//   - d_kernel: not computed, the network is a fixed feature extractor
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
type Conv2DOp struct {
	input   *tensor.RawTensor
	kernel  *tensor.RawTensor
	output  *tensor.RawTensor
	stride  int
	padding int
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(input, kernel, output *tensor.RawTensor, stride, padding int) *Conv2DOp {
	return &Conv2DOp{
		input:   input,
		kernel:  kernel,
		output:  output,
		stride:  stride,
		padding: padding,
	}
}

// Inputs returns the input tensors.
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.kernel}
}

// Output returns the output tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient for Conv2D.
//
// Given:
//   - outputGrad: ∂L/∂output [N, C_out, H_out, W_out]
//
// Compute:
//   - inputGrad: ∂L/∂input [N, C_in, H, W]
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.GradBackend) []*tensor.RawTensor {
	inputGrad := backend.Conv2DInputBackward(op.input, op.kernel, outputGrad, op.stride, op.padding)
	return []*tensor.RawTensor{inputGrad, nil}
}

// AddBiasOp records a per-channel bias add.
//
// The bias is a frozen weight; only the activation receives a gradient.
type AddBiasOp struct {
	input  *tensor.RawTensor
	bias   *tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddBiasOp creates a new AddBiasOp.
func NewAddBiasOp(input, bias, output *tensor.RawTensor) *AddBiasOp {
	return &AddBiasOp{input: input, bias: bias, output: output}
}

// Inputs returns [input, bias].
func (op *AddBiasOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input, op.bias}
}

// Output returns input + bias.
func (op *AddBiasOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward passes the output gradient straight through to the input.
func (op *AddBiasOp) Backward(outputGrad *tensor.RawTensor, _ tensor.GradBackend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad, nil}
}
