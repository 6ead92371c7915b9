// Package cpu implements the pure Go CPU backend.
//
// Heavy kernels (convolution, Gram matrices) spread whole feature planes
// across goroutines with internal/parallel. Every kernel allocates its
// result; inputs are never modified.
package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// CPUBackend implements tensor.GradBackend on the CPU.
//
// A CPUBackend holds no mutable state and is safe for concurrent use.
type CPUBackend struct {
	par parallel.Config
}

// Compile-time check that CPUBackend implements tensor.GradBackend.
var _ tensor.GradBackend = (*CPUBackend)(nil)

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel overrides the parallel execution config.
func WithParallel(cfg parallel.Config) Option {
	return func(cpu *CPUBackend) {
		cpu.par = cfg
	}
}

// New creates a new CPU backend.
func New(opts ...Option) *CPUBackend {
	cpu := &CPUBackend{par: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(cpu)
	}
	return cpu
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Scale multiplies every element by factor.
func (cpu *CPUBackend) Scale(x *tensor.RawTensor, factor float32) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape())
	out := result.Data()
	for i, v := range x.Data() {
		out[i] = v * factor
	}
	return result
}

// Add performs element-wise addition of two same-shaped tensors.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("add: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	result := tensor.MustRaw(a.Shape())
	out := result.Data()
	bData := b.Data()
	for i, v := range a.Data() {
		out[i] = v + bData[i]
	}
	return result
}

// SquaredDiffSum computes Σ (a-b)² as a scalar.
//
// Accumulation happens in float64: activation maps hold millions of
// elements and a float32 running sum loses the low-order terms.
func (cpu *CPUBackend) SquaredDiffSum(a, b *tensor.RawTensor) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("squared diff: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	var sum float64
	bData := b.Data()
	for i, v := range a.Data() {
		d := float64(v) - float64(bData[i])
		sum += d * d
	}
	return tensor.Scalar(float32(sum))
}

// SquaredDiffBackward returns 2·(a-b)·g, the gradient of g·Σ (a-b)² with respect to a.
func (cpu *CPUBackend) SquaredDiffBackward(a, b, grad *tensor.RawTensor) *tensor.RawTensor {
	g := 2 * grad.Item()
	result := tensor.MustRaw(a.Shape())
	out := result.Data()
	bData := b.Data()
	for i, v := range a.Data() {
		out[i] = g * (v - bData[i])
	}
	return result
}
