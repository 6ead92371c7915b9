// Package loss implements the perceptual objective of style transfer.
//
// Every function takes a tensor.Backend. An autodiff backend with its tape
// recording makes the result differentiable with respect to the candidate
// activations; the plain CPU backend only evaluates numbers. Results are
// scalar tensors returned to the caller, never stored.
package loss

import (
	"math"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/tensor"
)

// ContentLoss is Σ (target - candidate)² over two activation maps of the
// same shape. There is no normalizing factor: alpha absorbs the layer size.
func ContentLoss(b tensor.Backend, target, candidate *tensor.RawTensor) (*tensor.RawTensor, error) {
	if !target.Shape().Equal(candidate.Shape()) {
		return nil, errs.Configurationf("loss.ContentLoss", "activation shapes differ: %v vs %v", target.Shape(), candidate.Shape())
	}
	return b.SquaredDiffSum(candidate, target), nil
}

// GramMatrix views a [1, C, H, W] activation as M = [C, H·W] and returns
// the C×C matrix M·Mᵀ.
func GramMatrix(b tensor.Backend, activation *tensor.RawTensor) (*tensor.RawTensor, error) {
	n, _, _, _, err := activation.Shape().NCHW()
	if err != nil {
		return nil, errs.Configuration("loss.GramMatrix", err)
	}
	if n != 1 {
		return nil, errs.Configurationf("loss.GramMatrix", "batch size must be 1, got %d", n)
	}
	return b.Gram(activation), nil
}

// StyleNorm is the normalizer (2·area·channels)² of a layer's style loss.
func StyleNorm(area, channels int) float64 {
	d := 2 * float64(area) * float64(channels)
	return d * d
}

// LayerStyleLoss is Σ (styleGram - candidateGram)² / (2·area·channels)².
//
// area is H·W of the activation the Gram matrices were computed from, and
// channels is C.
func LayerStyleLoss(b tensor.Backend, styleGram, candidateGram *tensor.RawTensor, area, channels int) (*tensor.RawTensor, error) {
	const op = "loss.LayerStyleLoss"
	if area <= 0 || channels <= 0 {
		return nil, errs.Configurationf(op, "area and channels must be positive, got %d and %d", area, channels)
	}
	want := tensor.Shape{channels, channels}
	if !styleGram.Shape().Equal(want) || !candidateGram.Shape().Equal(want) {
		return nil, errs.Configurationf(op, "gram shapes %v and %v, want %v", styleGram.Shape(), candidateGram.Shape(), want)
	}
	return b.Scale(b.SquaredDiffSum(candidateGram, styleGram), float32(1/StyleNorm(area, channels))), nil
}

// TotalStyleLoss is Σ weights[i]·perLayer[i].
func TotalStyleLoss(b tensor.Backend, perLayer []*tensor.RawTensor, weights []float64) (*tensor.RawTensor, error) {
	const op = "loss.TotalStyleLoss"
	if len(perLayer) == 0 {
		return nil, errs.Configurationf(op, "no style layers")
	}
	if len(perLayer) != len(weights) {
		return nil, errs.Configurationf(op, "%d layer losses but %d weights", len(perLayer), len(weights))
	}
	var total *tensor.RawTensor
	for i, l := range perLayer {
		if err := checkScalar(op, l); err != nil {
			return nil, err
		}
		term := b.Scale(l, float32(weights[i]))
		if total == nil {
			total = term
			continue
		}
		total = b.Add(total, term)
	}
	return total, nil
}

// TotalLoss is alpha·content + beta·style, the objective the optimizer
// differentiates.
func TotalLoss(b tensor.Backend, content, style *tensor.RawTensor, alpha, beta float64) (*tensor.RawTensor, error) {
	const op = "loss.TotalLoss"
	if err := checkScalar(op, content); err != nil {
		return nil, err
	}
	if err := checkScalar(op, style); err != nil {
		return nil, err
	}
	return b.Add(b.Scale(content, float32(alpha)), b.Scale(style, float32(beta))), nil
}

func checkScalar(op string, t *tensor.RawTensor) error {
	if t == nil || t.NumElements() != 1 || len(t.Shape()) != 0 {
		return errs.Configurationf(op, "expected a scalar loss tensor")
	}
	return nil
}

// Weights is the immutable weighting of one run.
type Weights struct {
	Alpha float64   // content weight
	Beta  float64   // style weight
	Style []float64 // per style layer, in style layer order
}

// Validate rejects negative or non-finite weights and an all-zero objective.
func (w Weights) Validate() error {
	const op = "loss.Weights"
	all := append([]float64{w.Alpha, w.Beta}, w.Style...)
	for _, v := range all {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.Configurationf(op, "weights must be finite and non-negative, got %v", v)
		}
	}
	if w.Alpha == 0 && w.Beta == 0 {
		return errs.Configurationf(op, "alpha and beta are both zero")
	}
	return nil
}

// Breakdown is the value of the objective at one iteration.
type Breakdown struct {
	Content  float64            // unweighted content loss
	Style    float64            // weighted sum of layer style losses, before beta
	PerLayer map[string]float64 // unweighted layer style losses
	Total    float64            // alpha·Content + beta·Style
}
