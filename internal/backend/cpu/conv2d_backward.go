package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// Conv2DInputBackward computes gradient w.r.t. input using transposed convolution.
//
// Algorithm: Transposed convolution (full convolution).
//   - For each input plane (n, c_in), owned by one work item:
//   - Sum contributions from all output positions that used this input
//   - Each contribution is: grad[n, c_out, h_out, w_out] * kernel[c_out, c_in, kh, kw]
//
// Kernel gradients are not computed: the network's weights are frozen and
// only the image is optimized.
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
func (cpu *CPUBackend) Conv2DInputBackward(input, kernel, grad *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	N, CIn, H, W, err := input.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("Conv2DInputBackward: input: %v", err))
	}
	COut, _, KH, KW, err := kernel.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("Conv2DInputBackward: kernel: %v", err))
	}
	gN, gC, HOut, WOut, err := grad.Shape().NCHW()
	if err != nil || gN != N || gC != COut {
		panic(fmt.Sprintf("Conv2DInputBackward: grad shape %v incompatible with input %v and kernel %v",
			grad.Shape(), input.Shape(), kernel.Shape()))
	}

	inputGrad := tensor.MustRaw(input.Shape())

	gData := grad.Data()
	kData := kernel.Data()
	dIn := inputGrad.Data()
	inPlane := H * W
	outPlane := HOut * WOut

	parallel.ForBatch(N, CIn, func(n, ic int) {
		dst := dIn[(n*CIn+ic)*inPlane : (n*CIn+ic+1)*inPlane]
		for oc := 0; oc < COut; oc++ {
			g := gData[(n*COut+oc)*outPlane : (n*COut+oc+1)*outPlane]
			taps := kData[(oc*CIn+ic)*KH*KW : (oc*CIn+ic+1)*KH*KW]
			for kh := 0; kh < KH; kh++ {
				for kw := 0; kw < KW; kw++ {
					wv := taps[kh*KW+kw]
					if wv == 0 {
						continue
					}
					scatterTap(dst, g, wv, H, W, HOut, WOut, kh-padding, kw-padding, stride)
				}
			}
		}
	}, cpu.par)

	return inputGrad
}

// scatterTap is the adjoint of gatherTap:
// dst[oh*stride+dh, ow*stride+dw] += wv * g[oh, ow].
func scatterTap(dst, g []float32, wv float32, H, W, HOut, WOut, dh, dw, stride int) {
	hLo, hHi := validRange(HOut, H, dh, stride)
	wLo, wHi := validRange(WOut, W, dw, stride)
	for oh := hLo; oh < hHi; oh++ {
		row := dst[(oh*stride+dh)*W:]
		src := g[oh*WOut : (oh+1)*WOut]
		if stride == 1 {
			seg := row[wLo+dw : wHi+dw]
			for i := range seg {
				seg[i] += wv * src[wLo+i]
			}
			continue
		}
		for ow := wLo; ow < wHi; ow++ {
			row[ow*stride+dw] += wv * src[ow]
		}
	}
}
