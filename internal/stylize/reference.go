package stylize

import (
	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/imaging"
	"github.com/born-ml/stylize/internal/loss"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/born-ml/stylize/internal/vgg"
)

// Reference is the precomputed target of one run: the content activation
// and one Gram matrix per style layer. It is read-only once built.
type Reference struct {
	Width, Height int

	ContentLayer string
	Content      *tensor.RawTensor // [1, C, H', W']

	StyleLayers []string
	Grams       []*tensor.RawTensor // [C, C] per style layer
	Areas       []int               // H'·W' per style layer
	Channels    []int               // C per style layer
}

// NewReference extracts the content and style targets with a plain backend.
// content and style must have the same dimensions.
func NewReference(e *vgg.Extractor, b tensor.Backend, content, style *imaging.Normalized, contentLayer string, styleLayers []string) (*Reference, error) {
	const op = "stylize.NewReference"
	if content.Width() != style.Width() || content.Height() != style.Height() {
		return nil, errs.Configurationf(op, "content is %dx%d but style is %dx%d",
			content.Width(), content.Height(), style.Width(), style.Height())
	}

	cActs, err := e.Extract(b, content, []string{contentLayer})
	if err != nil {
		return nil, err
	}
	sActs, err := e.Extract(b, style, styleLayers)
	if err != nil {
		return nil, err
	}

	ref := &Reference{
		Width:        content.Width(),
		Height:       content.Height(),
		ContentLayer: contentLayer,
		Content:      cActs[contentLayer],
		StyleLayers:  styleLayers,
		Grams:        make([]*tensor.RawTensor, len(styleLayers)),
		Areas:        make([]int, len(styleLayers)),
		Channels:     make([]int, len(styleLayers)),
	}
	for i, name := range styleLayers {
		act := sActs[name]
		g, err := loss.GramMatrix(b, act)
		if err != nil {
			return nil, err
		}
		shape := act.Shape()
		ref.Grams[i] = g
		ref.Channels[i] = shape[1]
		ref.Areas[i] = shape[2] * shape[3]
	}
	return ref, nil
}

// Objective evaluates the weighted loss of candidate activations against
// the reference. The returned tensor is differentiable when b records.
func (ref *Reference) Objective(b tensor.Backend, acts map[string]*tensor.RawTensor, w loss.Weights) (*tensor.RawTensor, loss.Breakdown, error) {
	for _, name := range append([]string{ref.ContentLayer}, ref.StyleLayers...) {
		if acts[name] == nil {
			return nil, loss.Breakdown{}, errs.Configurationf("stylize.Objective", "no activation for layer %s", name)
		}
	}
	content, err := loss.ContentLoss(b, ref.Content, acts[ref.ContentLayer])
	if err != nil {
		return nil, loss.Breakdown{}, err
	}

	br := loss.Breakdown{
		Content:  float64(content.Item()),
		PerLayer: make(map[string]float64, len(ref.StyleLayers)),
	}
	perLayer := make([]*tensor.RawTensor, len(ref.StyleLayers))
	for i, name := range ref.StyleLayers {
		g, err := loss.GramMatrix(b, acts[name])
		if err != nil {
			return nil, loss.Breakdown{}, err
		}
		l, err := loss.LayerStyleLoss(b, ref.Grams[i], g, ref.Areas[i], ref.Channels[i])
		if err != nil {
			return nil, loss.Breakdown{}, err
		}
		perLayer[i] = l
		br.PerLayer[name] = float64(l.Item())
	}

	style, err := loss.TotalStyleLoss(b, perLayer, w.Style)
	if err != nil {
		return nil, loss.Breakdown{}, err
	}
	total, err := loss.TotalLoss(b, content, style, w.Alpha, w.Beta)
	if err != nil {
		return nil, loss.Breakdown{}, err
	}
	br.Style = float64(style.Item())
	br.Total = float64(total.Item())
	return total, br, nil
}
