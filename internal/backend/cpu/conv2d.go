package cpu

import (
	"fmt"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// Conv2D performs 2D convolution with zero padding.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Algorithm: direct convolution, one output plane per work item.
// Each kernel tap adds a shifted, scaled copy of an input plane into the output
// plane, so no im2col buffer is materialized. At VGG scale the im2col matrix
// for a single 512x512 layer would be several hundred megabytes.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	N, CIn, H, W, err := input.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("conv2d: input: %v", err))
	}
	COut, CInK, KH, KW, err := kernel.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("conv2d: kernel: %v", err))
	}
	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride=%d padding=%d", stride, padding))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", HOut, WOut))
	}

	output := tensor.MustRaw(tensor.Shape{N, COut, HOut, WOut})

	inData := input.Data()
	kData := kernel.Data()
	outData := output.Data()
	inPlane := H * W
	outPlane := HOut * WOut

	parallel.ForBatch(N, COut, func(n, oc int) {
		dst := outData[(n*COut+oc)*outPlane : (n*COut+oc+1)*outPlane]
		for ic := 0; ic < CIn; ic++ {
			src := inData[(n*CIn+ic)*inPlane : (n*CIn+ic+1)*inPlane]
			taps := kData[(oc*CIn+ic)*KH*KW : (oc*CIn+ic+1)*KH*KW]
			for kh := 0; kh < KH; kh++ {
				for kw := 0; kw < KW; kw++ {
					wv := taps[kh*KW+kw]
					if wv == 0 {
						continue
					}
					gatherTap(dst, src, wv, H, W, HOut, WOut, kh-padding, kw-padding, stride)
				}
			}
		}
	}, cpu.par)

	return output
}

// gatherTap accumulates dst[oh,ow] += wv * src[oh*stride+dh, ow*stride+dw]
// over every output position whose source lies inside the input plane.
func gatherTap(dst, src []float32, wv float32, H, W, HOut, WOut, dh, dw, stride int) {
	hLo, hHi := validRange(HOut, H, dh, stride)
	wLo, wHi := validRange(WOut, W, dw, stride)
	for oh := hLo; oh < hHi; oh++ {
		row := src[(oh*stride+dh)*W:]
		out := dst[oh*WOut : (oh+1)*WOut]
		if stride == 1 {
			seg := row[wLo+dw : wHi+dw]
			for i, v := range seg {
				out[wLo+i] += wv * v
			}
			continue
		}
		for ow := wLo; ow < wHi; ow++ {
			out[ow] += wv * row[ow*stride+dw]
		}
	}
}

// validRange returns the half-open range [lo, hi) of output indices o for
// which o*stride+offset falls inside [0, inSize).
func validRange(outSize, inSize, offset, stride int) (lo, hi int) {
	if offset < 0 {
		lo = (-offset + stride - 1) / stride
	}
	last := inSize - 1 - offset
	if last < 0 {
		return 0, 0
	}
	hi = min(outSize, last/stride+1)
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// AddBias adds a per-channel bias to an NCHW tensor.
//
// bias shape: [channels].
func (cpu *CPUBackend) AddBias(x, bias *tensor.RawTensor) *tensor.RawTensor {
	N, C, H, W, err := x.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("addbias: %v", err))
	}
	if bias.NumElements() != C {
		panic(fmt.Sprintf("addbias: bias has %d elements, want %d", bias.NumElements(), C))
	}

	result := tensor.MustRaw(x.Shape())
	xData := x.Data()
	bData := bias.Data()
	out := result.Data()
	plane := H * W
	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			off := (n*C + c) * plane
			b := bData[c]
			for i := off; i < off+plane; i++ {
				out[i] = xData[i] + b
			}
		}
	}
	return result
}
