package vgg

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/rand"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/loader"
	"github.com/born-ml/stylize/internal/tensor"
)

// Options configures Load.
type Options struct {
	// SHA256 is an optional hex digest the weight file must match.
	SHA256 string

	// Scheme forces a naming scheme ("torchvision", "keras", "native").
	// Empty means detect from the tensor names.
	Scheme string

	// Logger receives load progress. Nil discards.
	Logger *slog.Logger
}

// Load reads VGG19 convolution weights from a SafeTensors file.
//
// Every failure is a resource error. A malformed header, a checksum
// mismatch, a missing tensor or a tensor of the wrong shape also matches
// errs.ErrFormat. On any error no extractor is returned.
func Load(path string, opts Options) (*Extractor, error) {
	const op = "vgg.Load"
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.SHA256 != "" {
		if err := loader.VerifyFile(path, opts.SHA256); err != nil {
			return nil, classify(op, path, err)
		}
	}

	r, err := loader.NewSafeTensorsReader(path)
	if err != nil {
		return nil, classify(op, path, err)
	}
	defer func() { _ = r.Close() }()

	mapper, err := pickMapper(opts.Scheme, r.TensorNames())
	if err != nil {
		return nil, errs.Corrupt(op, path, err)
	}

	divisor, err := widthDivisor(r, mapper)
	if err != nil {
		return nil, errs.Corrupt(op, path, err)
	}

	layers := topology(divisor)
	stages := make([]stage, len(layers))
	for i, l := range layers {
		stages[i].Layer = l
		if l.Pool {
			continue
		}
		kernel, bias, err := readConv(r, mapper, l)
		if err != nil {
			return nil, errs.Corrupt(op, path, err)
		}
		stages[i].kernel = kernel
		stages[i].bias = bias
	}

	logger.Info("loaded extractor weights",
		slog.String("path", path),
		slog.String("scheme", mapper.Scheme()),
		slog.Int("width_divisor", divisor),
		slog.Int("tensors", len(r.TensorNames())))

	return newExtractor(stages, path), nil
}

// classify separates unreadable files from unusable ones.
func classify(op, path string, err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return errs.Resource(op, path, err)
	}
	return errs.Corrupt(op, path, err)
}

func pickMapper(scheme string, names []string) (loader.WeightMapper, error) {
	switch scheme {
	case "":
		return loader.DetectMapper(names)
	case loader.SchemeTorchvision:
		return loader.NewTorchvisionMapper(), nil
	case loader.SchemeKeras:
		return loader.NewKerasMapper(), nil
	case loader.SchemeNative:
		return loader.NewNativeMapper(), nil
	default:
		return nil, fmt.Errorf("unknown weight scheme %q", scheme)
	}
}

// widthDivisor infers how much narrower than VGG19 the stored network is
// from the output width of block1_conv1. Pretrained files give 1.
func widthDivisor(r *loader.SafeTensorsReader, m loader.WeightMapper) (int, error) {
	name := m.TensorName("block1_conv1", loader.ParamKernel)
	info, err := r.TensorInfo(name)
	if err != nil {
		return 0, err
	}
	if len(info.Shape) != 4 {
		return 0, fmt.Errorf("kernel %s has shape %v, want 4D", name, info.Shape)
	}
	out := info.Shape[0]
	if m.Layout() == loader.LayoutHWIO {
		out = info.Shape[3]
	}
	if out <= 0 || blockWidths[0]%out != 0 {
		return 0, fmt.Errorf("kernel %s has %d output channels, want a divisor of %d", name, out, blockWidths[0])
	}
	return blockWidths[0] / out, nil
}

func readConv(r *loader.SafeTensorsReader, m loader.WeightMapper, l Layer) (kernel, bias *tensor.RawTensor, err error) {
	kName := m.TensorName(l.Name, loader.ParamKernel)
	kernel, err = r.LoadTensor(kName)
	if err != nil {
		return nil, nil, fmt.Errorf("layer %s: %w", l.Name, err)
	}
	if m.Layout() == loader.LayoutHWIO {
		kernel, err = hwioToOIHW(kernel)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
	}
	want := tensor.Shape{l.OutDepth, l.InDepth, 3, 3}
	if !kernel.Shape().Equal(want) {
		return nil, nil, fmt.Errorf("layer %s: kernel %s has shape %v, want %v", l.Name, kName, kernel.Shape(), want)
	}

	bName := m.TensorName(l.Name, loader.ParamBias)
	bias, err = r.LoadTensor(bName)
	if err != nil {
		return nil, nil, fmt.Errorf("layer %s: %w", l.Name, err)
	}
	if !bias.Shape().Equal(tensor.Shape{l.OutDepth}) {
		return nil, nil, fmt.Errorf("layer %s: bias %s has shape %v, want [%d]", l.Name, bName, bias.Shape(), l.OutDepth)
	}

	if !kernel.AllFinite() || !bias.AllFinite() {
		return nil, nil, fmt.Errorf("layer %s: weights contain NaN or Inf", l.Name)
	}
	return kernel, bias, nil
}

// hwioToOIHW transposes a Keras [kh, kw, in, out] kernel to [out, in, kh, kw].
func hwioToOIHW(k *tensor.RawTensor) (*tensor.RawTensor, error) {
	s := k.Shape()
	if len(s) != 4 {
		return nil, fmt.Errorf("kernel must be 4D, got %v", s)
	}
	kh, kw, in, out := s[0], s[1], s[2], s[3]
	dst := tensor.MustRaw(tensor.Shape{out, in, kh, kw})
	src := k.Data()
	d := dst.Data()
	for h := 0; h < kh; h++ {
		for w := 0; w < kw; w++ {
			for i := 0; i < in; i++ {
				for o := 0; o < out; o++ {
					d[((o*in+i)*kh+h)*kw+w] = src[((h*kw+w)*in+i)*out+o]
				}
			}
		}
	}
	return dst, nil
}

// NewRandom builds the VGG19 topology with deterministic random weights.
//
// Channel widths are divided by divisor, which must divide 64 (1 gives the
// real network).
// Kernels use Xavier uniform initialization and biases are zero, so the
// network has no pretrained semantics; it exists for tests and offline demos.
func NewRandom(seed int64, divisor int) (*Extractor, error) {
	if divisor < 1 || blockWidths[0]%divisor != 0 {
		return nil, errs.Configurationf("vgg.NewRandom", "width divisor %d does not divide %d", divisor, blockWidths[0])
	}
	//nolint:gosec // G404: weight initialization is not security-critical
	rng := rand.New(rand.NewSource(seed))

	layers := topology(divisor)
	stages := make([]stage, len(layers))
	for i, l := range layers {
		stages[i].Layer = l
		if l.Pool {
			continue
		}
		fanIn := l.InDepth * 9
		fanOut := l.OutDepth * 9
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

		kernel := tensor.MustRaw(tensor.Shape{l.OutDepth, l.InDepth, 3, 3})
		for j := range kernel.Data() {
			kernel.Data()[j] = float32((rng.Float64()*2 - 1) * bound)
		}
		stages[i].kernel = kernel
		stages[i].bias = tensor.MustRaw(tensor.Shape{l.OutDepth})
	}
	return newExtractor(stages, fmt.Sprintf("random(seed=%d, width/%d)", seed, divisor)), nil
}

// Save writes the extractor's weights to a SafeTensors file using native
// names (block1_conv1.weight, block1_conv1.bias, ...).
func (e *Extractor) Save(path string) error {
	m := loader.NewNativeMapper()
	tensors := make(map[string]*tensor.RawTensor, 2*len(e.stages))
	for _, s := range e.stages {
		if s.Pool {
			continue
		}
		tensors[m.TensorName(s.Name, loader.ParamKernel)] = s.kernel
		tensors[m.TensorName(s.Name, loader.ParamBias)] = s.bias
	}
	if err := loader.WriteSafeTensors(path, tensors, map[string]string{"source": e.source}); err != nil {
		return classify("vgg.Save", path, err)
	}
	return nil
}
