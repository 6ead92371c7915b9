package loss

import (
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func activation(rng *rand.Rand, c, h, w int) *tensor.RawTensor {
	t := tensor.MustRaw(tensor.Shape{1, c, h, w})
	for i := range t.Data() {
		t.Data()[i] = rng.Float32() * 4
	}
	return t
}

func TestContentLoss(t *testing.T) {
	b := cpu.New()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	y, _ := tensor.FromSlice([]float32{1, 0, 3, 7}, tensor.Shape{1, 1, 2, 2})

	l, err := ContentLoss(b, x, y)
	require.NoError(t, err)
	assert.Equal(t, float32(13), l.Item())

	_, err = ContentLoss(b, x, tensor.MustRaw(tensor.Shape{1, 1, 2, 3}))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestZeroLossForIdenticalInputs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.IntRange(1, 8).Draw(t, "c")
		h := rapid.IntRange(1, 6).Draw(t, "h")
		w := rapid.IntRange(1, 6).Draw(t, "w")
		rng := rand.New(rand.NewSource(rapid.Int64().Draw(t, "seed")))
		b := cpu.New()
		x := activation(rng, c, h, w)

		content, err := ContentLoss(b, x, x.Clone())
		require.NoError(t, err)
		assert.Zero(t, content.Item())

		g, err := GramMatrix(b, x)
		require.NoError(t, err)
		style, err := LayerStyleLoss(b, g, g.Clone(), h*w, c)
		require.NoError(t, err)
		assert.Zero(t, style.Item())
	})
}

func TestGramMatrix(t *testing.T) {
	b := cpu.New()
	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 0, 1, 0, 1}, tensor.Shape{1, 2, 2, 2})
	g, err := GramMatrix(b, x)
	require.NoError(t, err)
	assert.Equal(t, []float32{30, 6, 6, 2}, g.Data())

	_, err = GramMatrix(b, tensor.MustRaw(tensor.Shape{2, 2}))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = GramMatrix(b, tensor.MustRaw(tensor.Shape{2, 1, 2, 2}))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestGramMatrix_Symmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.IntRange(1, 10).Draw(t, "c")
		rng := rand.New(rand.NewSource(rapid.Int64().Draw(t, "seed")))
		g, err := GramMatrix(cpu.New(), activation(rng, c, 3, 5))
		require.NoError(t, err)
		for i := 0; i < c; i++ {
			for j := 0; j < c; j++ {
				if g.At(i, j) != g.At(j, i) {
					t.Fatalf("G[%d,%d]=%v, G[%d,%d]=%v", i, j, g.At(i, j), j, i, g.At(j, i))
				}
			}
		}
	})
}

func TestLayerStyleLoss_Normalization(t *testing.T) {
	b := cpu.New()
	s, _ := tensor.FromSlice([]float32{4, 0, 0, 4}, tensor.Shape{2, 2})
	c, _ := tensor.FromSlice([]float32{2, 0, 0, 4}, tensor.Shape{2, 2})

	// Σ ΔG² = 4, area 3, channels 2: 4 / (2·3·2)² = 4/144.
	l, err := LayerStyleLoss(b, s, c, 3, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/144.0, float64(l.Item()), 1e-7)
	assert.Equal(t, 144.0, StyleNorm(3, 2))

	_, err = LayerStyleLoss(b, s, tensor.MustRaw(tensor.Shape{3, 3}), 3, 2)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = LayerStyleLoss(b, s, c, 0, 2)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestTotals(t *testing.T) {
	b := cpu.New()
	l1 := tensor.Scalar(2)
	l2 := tensor.Scalar(10)

	style, err := TotalStyleLoss(b, []*tensor.RawTensor{l1, l2}, []float64{0.5, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(11), style.Item())

	total, err := TotalLoss(b, tensor.Scalar(1000), style, 1e-3, 1)
	require.NoError(t, err)
	assert.InDelta(t, 12, float64(total.Item()), 1e-5)

	_, err = TotalStyleLoss(b, []*tensor.RawTensor{l1}, []float64{1, 2})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = TotalStyleLoss(b, nil, nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = TotalLoss(b, tensor.MustRaw(tensor.Shape{2}), style, 1, 1)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

// TestTotalLoss_Gradient checks that the whole objective differentiates
// through the autodiff backend: for content alone, dL/dx = 2·alpha·(x - t).
func TestTotalLoss_Gradient(t *testing.T) {
	ad := autodiff.New(cpu.New())
	target, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	x, _ := tensor.FromSlice([]float32{0, 2, 5, 4}, tensor.Shape{1, 1, 2, 2})

	ad.Tape().StartRecording()
	content, err := ContentLoss(ad, target, x)
	require.NoError(t, err)
	g, err := GramMatrix(ad, x)
	require.NoError(t, err)
	tg, err := GramMatrix(cpu.New(), target)
	require.NoError(t, err)
	layer, err := LayerStyleLoss(ad, tg, g, 4, 1)
	require.NoError(t, err)
	style, err := TotalStyleLoss(ad, []*tensor.RawTensor{layer}, []float64{0})
	require.NoError(t, err)
	total, err := TotalLoss(ad, content, style, 0.5, 1)
	require.NoError(t, err)

	grads := autodiff.Backward(total, ad)
	require.Contains(t, grads, x)
	assert.InDeltaSlice(t, []float32{-1, 0, 2, 0}, grads[x].Data(), 1e-5)
}

func TestWeights_Validate(t *testing.T) {
	assert.NoError(t, Weights{Alpha: 1e-3, Beta: 1, Style: []float64{0.5, 1}}.Validate())
	assert.ErrorIs(t, Weights{Alpha: -1, Beta: 1}.Validate(), errs.ErrConfiguration)
	assert.ErrorIs(t, Weights{Alpha: 0, Beta: 0}.Validate(), errs.ErrConfiguration)
	assert.ErrorIs(t, Weights{Alpha: 1, Beta: 1, Style: []float64{-0.1}}.Validate(), errs.ErrConfiguration)
}
