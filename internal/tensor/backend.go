package tensor

// Backend defines the forward kernels used by the feature extractor and the
// loss engine. Backends handle the actual computation; decorators such as the
// autodiff backend add gradient recording on top.
//
// Kernels panic on shape violations: callers validate shapes at the API edge.
type Backend interface {
	// Convolutional operations (NCHW input, [C_out, C_in, K_h, K_w] kernel)
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor
	AddBias(x, bias *RawTensor) *RawTensor // per-channel bias on NCHW
	MaxPool2D(input *RawTensor, kernelSize, stride int) *RawTensor

	// Activation functions
	ReLU(x *RawTensor) *RawTensor

	// Style statistics: [1, C, H, W] -> [C, C]
	Gram(x *RawTensor) *RawTensor

	// Reductions and scalar arithmetic
	SquaredDiffSum(a, b *RawTensor) *RawTensor    // Σ (a-b)², scalar result
	Scale(x *RawTensor, factor float32) *RawTensor // x * factor
	Add(a, b *RawTensor) *RawTensor                // element-wise, same shape

	// Metadata
	Name() string
}

// GradBackend is a Backend that also provides the backward kernels needed to
// differentiate a scalar loss with respect to the network's input.
//
// Only input gradients exist: network weights and biases are frozen.
type GradBackend interface {
	Backend

	// Conv2DInputBackward computes ∂L/∂input given ∂L/∂output.
	Conv2DInputBackward(input, kernel, grad *RawTensor, stride, padding int) *RawTensor

	// MaxPool2DBackward routes grad to the flat input positions in maxIndices.
	MaxPool2DBackward(input, grad *RawTensor, maxIndices []int) *RawTensor

	// ReLUBackward masks grad where input <= 0.
	ReLUBackward(input, grad *RawTensor) *RawTensor

	// GramBackward computes ∂L/∂x for G = Gram(x).
	GramBackward(x, grad *RawTensor) *RawTensor

	// SquaredDiffBackward returns ∂L/∂a for L = g · Σ (a-b)² with g scalar.
	SquaredDiffBackward(a, b, grad *RawTensor) *RawTensor
}
