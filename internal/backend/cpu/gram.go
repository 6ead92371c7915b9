package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// Gram computes the channel correlation matrix of a single feature map.
//
// Input shape:  [1, C, H, W], viewed as M = [C, H*W]
// Output shape: [C, C] with G = M · Mᵀ
//
// Only the upper triangle is computed; each dot product is mirrored, so the
// result is exactly symmetric. Dot products accumulate in float64.
func (cpu *CPUBackend) Gram(x *tensor.RawTensor) *tensor.RawTensor {
	N, C, H, W, err := x.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("gram: %v", err))
	}
	if N != 1 {
		panic(fmt.Sprintf("gram: batch size must be 1, got %d", N))
	}

	area := H * W
	m := x.Data()
	result := tensor.MustRaw(tensor.Shape{C, C})
	g := result.Data()

	parallel.For(C, func(i int) {
		rowI := m[i*area : (i+1)*area]
		for j := i; j < C; j++ {
			rowJ := m[j*area : (j+1)*area]
			var dot float64
			for k, v := range rowI {
				dot += float64(v) * float64(rowJ[k])
			}
			g[i*C+j] = float32(dot)
			g[j*C+i] = float32(dot)
		}
	}, cpu.par)

	return result
}

// GramBackward returns dM = (dG + dGᵀ) · M reshaped to the input shape.
func (cpu *CPUBackend) GramBackward(x, grad *tensor.RawTensor) *tensor.RawTensor {
	_, C, H, W, err := x.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("gram backward: %v", err))
	}
	if !grad.Shape().Equal(tensor.Shape{C, C}) {
		panic(fmt.Sprintf("gram backward: grad shape %v, want [%d %d]", grad.Shape(), C, C))
	}

	area := H * W
	m := x.Data()
	dG := grad.Data()
	inputGrad := tensor.MustRaw(x.Shape())
	dM := inputGrad.Data()

	parallel.For(C, func(i int) {
		dst := dM[i*area : (i+1)*area]
		for j := 0; j < C; j++ {
			s := dG[i*C+j] + dG[j*C+i]
			if s == 0 {
				continue
			}
			rowJ := m[j*area : (j+1)*area]
			for k, v := range rowJ {
				dst[k] += s * v
			}
		}
	}, cpu.par)

	return inputGrad
}
