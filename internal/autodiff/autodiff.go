// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps a tensor.GradBackend and records every operation on a
// GradientTape while recording is enabled. The loss functions and the feature
// extractor are written against tensor.Backend, so the same code runs with or
// without gradient tracking.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any GradBackend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op (Conv2D, Gram, ...) implements backward pass
//   - Reverse-mode AD: one backward sweep yields the gradient for the image
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	loss := backend.SquaredDiffSum(x, target)
//	grads := autodiff.Backward(loss, backend)
//	dx := grads[x]
package autodiff

import (
	"github.com/born-ml/stylize/internal/autodiff/ops"
	"github.com/born-ml/stylize/internal/tensor"
)

// AutodiffBackend wraps a GradBackend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.GradBackend interface.
type AutodiffBackend[B tensor.GradBackend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.GradBackend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Conv2D performs 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	result := b.inner.Conv2D(input, kernel, stride, padding)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewConv2DOp(input, kernel, result, stride, padding))
	}
	return result
}

// AddBias adds a per-channel bias and records the operation.
func (b *AutodiffBackend[B]) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.AddBias(x, bias)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddBiasOp(x, bias, result))
	}
	return result
}

// MaxPool2D performs max pooling and records the operation.
func (b *AutodiffBackend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	result := b.inner.MaxPool2D(input, kernelSize, stride)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMaxPool2DOp(input, result, kernelSize, stride))
	}
	return result
}

// ReLU applies the rectifier and records the operation.
func (b *AutodiffBackend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.ReLU(x)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReLUOp(x, result))
	}
	return result
}

// Gram computes the Gram matrix and records the operation.
func (b *AutodiffBackend[B]) Gram(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Gram(x)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewGramOp(x, result))
	}
	return result
}

// SquaredDiffSum computes Σ (a-b)² and records the operation.
func (b *AutodiffBackend[B]) SquaredDiffSum(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.SquaredDiffSum(a, c)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSquaredDiffOp(a, c, result))
	}
	return result
}

// Scale multiplies by a constant and records the operation.
func (b *AutodiffBackend[B]) Scale(x *tensor.RawTensor, factor float32) *tensor.RawTensor {
	result := b.inner.Scale(x, factor)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewScaleOp(x, result, factor))
	}
	return result
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(a, c, result))
	}
	return result
}
