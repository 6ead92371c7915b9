package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
)

// MaxPool2D performs 2D max pooling without padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_h, out_w]
//
// Where:
//
//	out_h = (height - kernelSize) / stride + 1
//	out_w = (width - kernelSize) / stride + 1
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	N, C, H, W, err := input.Shape().NCHW()
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: %v", err))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernelSize=%d stride=%d", kernelSize, stride))
	}
	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: input %dx%d smaller than window %d", H, W, kernelSize))
	}

	output := tensor.MustRaw(tensor.Shape{N, C, HOut, WOut})

	inData := input.Data()
	outData := output.Data()
	inPlane := H * W
	outPlane := HOut * WOut

	parallel.ForBatch(N, C, func(n, c int) {
		inOff := (n*C + c) * inPlane
		out := outData[(n*C+c)*outPlane : (n*C+c+1)*outPlane]
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				best := float32(math.Inf(-1))
				for kh := 0; kh < kernelSize; kh++ {
					row := inData[inOff+(oh*stride+kh)*W+ow*stride:]
					for _, v := range row[:kernelSize] {
						if v > best {
							best = v
						}
					}
				}
				out[oh*WOut+ow] = best
			}
		}
	}, cpu.par)

	return output
}

// MaxPool2DBackward routes each output gradient to the input element that
// won its window.
//
// maxIndices holds one flat input index per output element.
func (cpu *CPUBackend) MaxPool2DBackward(input, grad *tensor.RawTensor, maxIndices []int) *tensor.RawTensor {
	if len(maxIndices) != grad.NumElements() {
		panic(fmt.Sprintf("maxpool2d backward: %d indices for %d gradient elements", len(maxIndices), grad.NumElements()))
	}
	inputGrad := tensor.MustRaw(input.Shape())
	dIn := inputGrad.Data()
	for i, g := range grad.Data() {
		dIn[maxIndices[i]] += g
	}
	return inputGrad
}
