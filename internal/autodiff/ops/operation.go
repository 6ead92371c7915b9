// Package ops defines operation interfaces and implementations for automatic differentiation.
//
// Each operation implements the Operation interface, which provides:
//   - Forward pass: computed by the backend
//   - Backward pass: computes gradients for inputs given output gradient
//
// Supported operations:
//   - Conv2DOp: 2D convolution (input gradient only, kernels are frozen)
//   - AddBiasOp: per-channel bias add (d/dx = 1)
//   - ReLUOp: rectified linear unit activation (d(ReLU(x))/dx = 1 if x > 0, else 0)
//   - MaxPool2DOp: max pooling (gradient routed to the window maximum)
//   - GramOp: channel correlation matrix (dM = (dG + dGᵀ)·M)
//   - SquaredDiffOp: Σ (a-b)² reduced to a scalar
//   - ScaleOp: multiplication by a constant
//   - AddOp: element-wise addition
package ops

import "github.com/born-ml/stylize/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor.
	// A nil entry means no gradient flows to that input.
	//
	// Example for AddOp:
	//   inputs: [a, b]
	//   outputGrad: dL/d(a+b)
	//   returns: [dL/d(a+b), dL/d(a+b)] (gradient flows equally to both inputs)
	Backward(outputGrad *tensor.RawTensor, backend tensor.GradBackend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}
