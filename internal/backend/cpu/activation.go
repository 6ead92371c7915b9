package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/tensor"
)

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := tensor.MustRaw(x.Shape())
	out := result.Data()
	for i, v := range x.Data() {
		if v > 0 {
			out[i] = v
		}
	}
	return result
}

// ReLUBackward passes grad through where input > 0 and zeroes it elsewhere.
func (cpu *CPUBackend) ReLUBackward(input, grad *tensor.RawTensor) *tensor.RawTensor {
	if !input.Shape().Equal(grad.Shape()) {
		panic(fmt.Sprintf("relu backward: shape mismatch %v vs %v", input.Shape(), grad.Shape()))
	}
	result := tensor.MustRaw(input.Shape())
	out := result.Data()
	gData := grad.Data()
	for i, v := range input.Data() {
		if v > 0 {
			out[i] = gData[i]
		}
	}
	return result
}
