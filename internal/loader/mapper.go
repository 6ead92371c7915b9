package loader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Naming scheme names.
const (
	SchemeTorchvision = "torchvision"
	SchemeKeras       = "keras"
	SchemeNative      = "native"
)

// Param identifies which parameter of a convolution a tensor holds.
type Param int

// Convolution parameters.
const (
	ParamKernel Param = iota
	ParamBias
)

// KernelLayout is the axis order of a stored convolution kernel.
type KernelLayout int

// Kernel layouts.
const (
	LayoutOIHW KernelLayout = iota // [out, in, kh, kw], PyTorch order
	LayoutHWIO                     // [kh, kw, in, out], Keras/TensorFlow order
)

// WeightMapper maps file-specific tensor names to extractor layer names.
type WeightMapper interface {
	// MapName resolves a tensor name. ok is false for tensors the extractor
	// does not use, such as the classifier head.
	MapName(name string) (layer string, param Param, ok bool)

	// TensorName is the inverse of MapName.
	TensorName(layer string, param Param) string

	// Layout returns the kernel axis order used by the scheme.
	Layout() KernelLayout

	// Scheme returns the scheme name (e.g., "torchvision", "keras").
	Scheme() string
}

// vgg19ConvIndices are the positions of the convolutions inside
// torchvision's vgg19().features Sequential. ReLU and pooling layers fill
// the gaps.
var vgg19ConvIndices = []int{0, 2, 5, 7, 10, 12, 14, 16, 19, 21, 23, 25, 28, 30, 32, 34}

// vgg19ConvNames are the Keras names of the same convolutions, in order.
var vgg19ConvNames = []string{
	"block1_conv1", "block1_conv2",
	"block2_conv1", "block2_conv2",
	"block3_conv1", "block3_conv2", "block3_conv3", "block3_conv4",
	"block4_conv1", "block4_conv2", "block4_conv3", "block4_conv4",
	"block5_conv1", "block5_conv2", "block5_conv3", "block5_conv4",
}

// ConvLayerNames returns the 16 VGG19 convolution names in forward order.
func ConvLayerNames() []string {
	return append([]string(nil), vgg19ConvNames...)
}

// TorchvisionMapper maps torchvision VGG19 state dict names.
//
// torchvision format:
//   - features.0.weight -> block1_conv1 kernel [64, 3, 3, 3]
//   - features.0.bias -> block1_conv1 bias [64]
//   - features.34.weight -> block5_conv4 kernel
//   - classifier.* -> ignored
type TorchvisionMapper struct {
	byIndex map[int]string
	byName  map[string]int
}

// NewTorchvisionMapper creates a new torchvision weight mapper.
func NewTorchvisionMapper() *TorchvisionMapper {
	m := &TorchvisionMapper{
		byIndex: make(map[int]string, len(vgg19ConvIndices)),
		byName:  make(map[string]int, len(vgg19ConvIndices)),
	}
	for i, idx := range vgg19ConvIndices {
		m.byIndex[idx] = vgg19ConvNames[i]
		m.byName[vgg19ConvNames[i]] = idx
	}
	return m
}

// MapName converts torchvision weight names to layer names.
func (m *TorchvisionMapper) MapName(name string) (string, Param, bool) {
	rest, found := strings.CutPrefix(name, "features.")
	if !found {
		return "", 0, false
	}
	idxStr, suffix, found := strings.Cut(rest, ".")
	if !found {
		return "", 0, false
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return "", 0, false
	}
	layer, ok := m.byIndex[idx]
	if !ok {
		return "", 0, false
	}
	switch suffix {
	case "weight":
		return layer, ParamKernel, true
	case "bias":
		return layer, ParamBias, true
	default:
		return "", 0, false
	}
}

// TensorName returns the torchvision name of a layer parameter.
func (m *TorchvisionMapper) TensorName(layer string, param Param) string {
	idx := m.byName[layer]
	if param == ParamBias {
		return fmt.Sprintf("features.%d.bias", idx)
	}
	return fmt.Sprintf("features.%d.weight", idx)
}

// Layout returns LayoutOIHW.
func (m *TorchvisionMapper) Layout() KernelLayout {
	return LayoutOIHW
}

// Scheme returns "torchvision".
func (m *TorchvisionMapper) Scheme() string {
	return SchemeTorchvision
}

// KerasMapper maps Keras VGG19 weight names.
//
// Keras format:
//   - block1_conv1/kernel:0 -> block1_conv1 kernel [3, 3, 3, 64]
//   - block1_conv1/bias:0 -> block1_conv1 bias [64]
//
// The ":0" suffix is optional.
type KerasMapper struct{}

// NewKerasMapper creates a new Keras weight mapper.
func NewKerasMapper() *KerasMapper {
	return &KerasMapper{}
}

// MapName converts Keras weight names to layer names.
func (m *KerasMapper) MapName(name string) (string, Param, bool) {
	layer, leaf, found := strings.Cut(name, "/")
	if !found || !isConvLayer(layer) {
		return "", 0, false
	}
	leaf = strings.TrimSuffix(leaf, ":0")
	switch leaf {
	case "kernel":
		return layer, ParamKernel, true
	case "bias":
		return layer, ParamBias, true
	default:
		return "", 0, false
	}
}

// TensorName returns the Keras name of a layer parameter.
func (m *KerasMapper) TensorName(layer string, param Param) string {
	if param == ParamBias {
		return layer + "/bias:0"
	}
	return layer + "/kernel:0"
}

// Layout returns LayoutHWIO.
func (m *KerasMapper) Layout() KernelLayout {
	return LayoutHWIO
}

// Scheme returns "keras".
func (m *KerasMapper) Scheme() string {
	return SchemeKeras
}

// NativeMapper maps the names written by vgg.Extractor.Save:
// block1_conv1.weight [out, in, 3, 3] and block1_conv1.bias.
type NativeMapper struct{}

// NewNativeMapper creates a new native weight mapper.
func NewNativeMapper() *NativeMapper {
	return &NativeMapper{}
}

// MapName converts native weight names to layer names.
func (m *NativeMapper) MapName(name string) (string, Param, bool) {
	layer, leaf, found := strings.Cut(name, ".")
	if !found || !isConvLayer(layer) {
		return "", 0, false
	}
	switch leaf {
	case "weight":
		return layer, ParamKernel, true
	case "bias":
		return layer, ParamBias, true
	default:
		return "", 0, false
	}
}

// TensorName returns the native name of a layer parameter.
func (m *NativeMapper) TensorName(layer string, param Param) string {
	if param == ParamBias {
		return layer + ".bias"
	}
	return layer + ".weight"
}

// Layout returns LayoutOIHW.
func (m *NativeMapper) Layout() KernelLayout {
	return LayoutOIHW
}

// Scheme returns "native".
func (m *NativeMapper) Scheme() string {
	return SchemeNative
}

func isConvLayer(name string) bool {
	return slices.Contains(vgg19ConvNames, name)
}

// DetectMapper picks a mapper from the tensor names present in a file.
func DetectMapper(names []string) (WeightMapper, error) {
	candidates := []WeightMapper{NewTorchvisionMapper(), NewKerasMapper(), NewNativeMapper()}
	for _, m := range candidates {
		for _, name := range names {
			if _, _, ok := m.MapName(name); ok {
				return m, nil
			}
		}
	}
	return nil, ErrUnknownNaming
}
