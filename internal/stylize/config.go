package stylize

import (
	"fmt"
	"math"
	"slices"

	"go.uber.org/multierr"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/loss"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/vgg"
)

// Config holds every hyperparameter of one optimization run.
type Config struct {
	ContentLayer string
	StyleLayers  []string

	Alpha       float64           // content weight
	Beta        float64           // style weight
	StylePolicy loss.WeightPolicy // per-layer style weights, shallow to deep

	Optimizer string // optim.KindAdam or optim.KindSGD
	LR        float32
	Momentum  float32    // sgd
	Betas     [2]float32 // adam
	Eps       float32    // adam

	NoiseRatio float64 // share of noise in the initial image
	NoiseRange float64 // noise is uniform in [-NoiseRange, +NoiseRange]
	Seed       int64

	MaxIterations        int
	ConvergenceWindow    int
	ConvergenceThreshold float64 // 0 disables convergence detection

	// ResizeStyle scales the style image to the content size. When false a
	// size mismatch is a configuration error.
	ResizeStyle bool
}

// DefaultConfig returns the classic Gatys et al. settings.
func DefaultConfig() Config {
	return Config{
		ContentLayer: "block4_conv2",
		StyleLayers: []string{
			"block1_conv1",
			"block2_conv1",
			"block3_conv1",
			"block4_conv1",
			"block5_conv1",
		},
		Alpha:                1e-3,
		Beta:                 1,
		StylePolicy:          loss.DefaultPolicy(),
		Optimizer:            optim.KindAdam,
		LR:                   2,
		Betas:                [2]float32{0.9, 0.999},
		Eps:                  1e-8,
		NoiseRatio:           0.6,
		NoiseRange:           20,
		Seed:                 1,
		MaxIterations:        1000,
		ConvergenceWindow:    20,
		ConvergenceThreshold: 0,
		ResizeStyle:          true,
	}
}

// Validate reports every problem with c at once. Layer names are checked
// against e when it is non-nil.
func (c Config) Validate(e *vgg.Extractor) error {
	var err error
	add := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf(format, args...))
	}

	if c.ContentLayer == "" {
		add("content layer is empty")
	}
	if len(c.StyleLayers) == 0 {
		add("no style layers")
	}
	for i, l := range c.StyleLayers {
		if slices.Contains(c.StyleLayers[:i], l) {
			add("style layer %s listed twice", l)
		}
	}
	if e != nil {
		for _, l := range append([]string{c.ContentLayer}, c.StyleLayers...) {
			if _, ok := e.Layer(l); l != "" && !ok {
				add("unknown layer %q", l)
			}
		}
	}

	if c.StylePolicy == nil {
		add("style weight policy is nil")
	} else if len(c.StyleLayers) > 0 {
		w, perr := c.StylePolicy.Weights(len(c.StyleLayers))
		if perr != nil {
			err = multierr.Append(err, perr)
		} else if werr := (loss.Weights{Alpha: c.Alpha, Beta: c.Beta, Style: w}).Validate(); werr != nil {
			err = multierr.Append(err, werr)
		}
	}

	if _, oerr := optim.New(c.Optimizer, c.optimConfig()); oerr != nil {
		err = multierr.Append(err, oerr)
	}
	if c.LR == 0 || isBad(float64(c.LR)) {
		add("learning rate must be positive, got %v", c.LR)
	}

	if c.NoiseRatio < 0 || c.NoiseRatio > 1 || isBad(c.NoiseRatio) {
		add("noise ratio must be in [0, 1], got %v", c.NoiseRatio)
	}
	if c.NoiseRange < 0 || isBad(c.NoiseRange) {
		add("noise range must be non-negative, got %v", c.NoiseRange)
	}
	if c.MaxIterations < 1 {
		add("max iterations must be at least 1, got %d", c.MaxIterations)
	}
	if c.ConvergenceThreshold < 0 || isBad(c.ConvergenceThreshold) {
		add("convergence threshold must be non-negative, got %v", c.ConvergenceThreshold)
	}
	if c.ConvergenceThreshold > 0 && c.ConvergenceWindow < 1 {
		add("convergence window must be at least 1, got %d", c.ConvergenceWindow)
	}

	if err != nil {
		return errs.Configuration("stylize.Config", err)
	}
	return nil
}

func (c Config) optimConfig() optim.Config {
	return optim.Config{LR: c.LR, Momentum: c.Momentum, Betas: c.Betas, Eps: c.Eps}
}

// layers returns the content layer followed by the style layers.
func (c Config) layers() []string {
	out := make([]string, 0, len(c.StyleLayers)+1)
	out = append(out, c.ContentLayer)
	for _, l := range c.StyleLayers {
		if l != c.ContentLayer {
			out = append(out, l)
		}
	}
	return out
}

// weightOrder orders the style layers the way the policy assigns weights.
// Depth-based policies get the layers shallow to deep. Explicit weights pair
// with the layers in the order they were listed.
func (c Config) weightOrder(e *vgg.Extractor) []string {
	out := slices.Clone(c.StyleLayers)
	switch c.StylePolicy.(type) {
	case loss.Explicit, *loss.Explicit:
		return out
	}
	order := make(map[string]int)
	for i, name := range e.Layers() {
		order[name] = i
	}
	slices.SortStableFunc(out, func(a, b string) int { return order[a] - order[b] })
	return out
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
