// Package vgg implements the VGG19 convolutional feature extractor.
//
// Only the feature stack is represented: sixteen 3×3 convolutions (stride 1,
// padding 1), each followed by ReLU, in five blocks separated by 2×2 max
// pooling (stride 2). Layers use Keras names; a convolution layer's output
// is taken after its ReLU.
//
//	block1_conv1 block1_conv2 block1_pool
//	block2_conv1 block2_conv2 block2_pool
//	block3_conv1 … block3_conv4 block3_pool
//	block4_conv1 … block4_conv4 block4_pool
//	block5_conv1 … block5_conv4 block5_pool
//
// An Extractor is immutable once constructed and safe for concurrent use by
// any number of optimization runs.
package vgg

import (
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/imaging"
	"github.com/born-ml/stylize/internal/tensor"
)

// blockConvs is the number of convolutions in each of the five blocks.
var blockConvs = [5]int{2, 2, 4, 4, 4}

// blockWidths is the output channel count of each block.
var blockWidths = [5]int{64, 128, 256, 512, 512}

// Layer describes one stage of the feature stack.
type Layer struct {
	Name     string
	Block    int  // 1-based block index
	Pool     bool // max pooling stage rather than convolution
	InDepth  int  // input channels (conv only)
	OutDepth int  // output channels
	Pools    int  // pooling stages before this layer
}

type stage struct {
	Layer
	kernel *tensor.RawTensor // [out, in, 3, 3]
	bias   *tensor.RawTensor // [out]
}

// Extractor holds frozen VGG19 weights.
type Extractor struct {
	stages []stage
	index  map[string]int
	source string
}

// topology returns the VGG19 stages with channel widths divided by divisor.
func topology(divisor int) []Layer {
	var layers []Layer
	in := 3
	pools := 0
	for b := 0; b < 5; b++ {
		out := max(blockWidths[b]/divisor, 1)
		for i := 0; i < blockConvs[b]; i++ {
			layers = append(layers, Layer{
				Name:     fmt.Sprintf("block%d_conv%d", b+1, i+1),
				Block:    b + 1,
				InDepth:  in,
				OutDepth: out,
				Pools:    pools,
			})
			in = out
		}
		layers = append(layers, Layer{
			Name:     fmt.Sprintf("block%d_pool", b+1),
			Block:    b + 1,
			Pool:     true,
			InDepth:  out,
			OutDepth: out,
			Pools:    pools,
		})
		pools++
	}
	return layers
}

func newExtractor(stages []stage, source string) *Extractor {
	e := &Extractor{
		stages: stages,
		index:  make(map[string]int, len(stages)),
		source: source,
	}
	for i, s := range stages {
		e.index[s.Name] = i
	}
	return e
}

// Source describes where the weights came from.
func (e *Extractor) Source() string {
	return e.source
}

// Layers returns every layer name in forward order.
func (e *Extractor) Layers() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name
	}
	return names
}

// Layer returns the description of a named layer.
func (e *Extractor) Layer(name string) (Layer, bool) {
	i, ok := e.index[name]
	if !ok {
		return Layer{}, false
	}
	return e.stages[i].Layer, true
}

// Depth returns the 1-based block index of a layer.
func (e *Extractor) Depth(name string) (int, error) {
	l, ok := e.Layer(name)
	if !ok {
		return 0, unknownLayer(name)
	}
	return l.Block, nil
}

// MinSize is the smallest height and width the forward pass up to the given
// layers accepts: every pooling stage before the deepest layer halves the
// spatial extent, and the pool output must keep at least one pixel.
func (e *Extractor) MinSize(layers []string) (int, error) {
	deepest, err := e.deepest(layers)
	if err != nil {
		return 0, err
	}
	pools := e.stages[deepest].Pools
	if e.stages[deepest].Pool {
		pools++
	}
	return 1 << pools, nil
}

// Validate checks that every name is a known layer.
func (e *Extractor) Validate(layers []string) error {
	_, err := e.deepest(layers)
	return err
}

func (e *Extractor) deepest(layers []string) (int, error) {
	if len(layers) == 0 {
		return 0, errs.Configurationf("vgg.Extract", "no layers requested")
	}
	deepest := -1
	var unknown []string
	for _, name := range layers {
		i, ok := e.index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		deepest = max(deepest, i)
	}
	if len(unknown) > 0 {
		return 0, unknownLayer(strings.Join(unknown, ", "))
	}
	return deepest, nil
}

func unknownLayer(name string) error {
	return errs.Configurationf("vgg", "unknown layer %q", name)
}

// Extract runs the forward pass of img up to the deepest requested layer and
// returns the activation of every requested layer, keyed by name.
//
// Activations have shape [1, C, H', W'] and are never modified afterwards.
// Passing an autodiff backend with its tape recording makes the returned
// activations differentiable with respect to img.
func (e *Extractor) Extract(b tensor.Backend, img *imaging.Normalized, layers []string) (map[string]*tensor.RawTensor, error) {
	deepest, err := e.deepest(layers)
	if err != nil {
		return nil, err
	}
	minSize, _ := e.MinSize(layers)
	if img.Height() < minSize || img.Width() < minSize {
		return nil, errs.Configurationf("vgg.Extract", "image %dx%d is smaller than %dx%d required for layer %s",
			img.Width(), img.Height(), minSize, minSize, e.stages[deepest].Name)
	}

	out := make(map[string]*tensor.RawTensor, len(layers))
	x := img.Tensor()
	for i := 0; i <= deepest; i++ {
		s := &e.stages[i]
		if s.Pool {
			x = b.MaxPool2D(x, 2, 2)
		} else {
			x = b.ReLU(b.AddBias(b.Conv2D(x, s.kernel, 1, 1), s.bias))
		}
		if slices.Contains(layers, s.Name) {
			out[s.Name] = x
		}
	}
	return out, nil
}
