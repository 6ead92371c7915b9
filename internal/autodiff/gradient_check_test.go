package autodiff

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomTensor(rng *rand.Rand, shape tensor.Shape, scale float32) *tensor.RawTensor {
	t := tensor.MustRaw(shape)
	for i := range t.Data() {
		t.Data()[i] = (rng.Float32()*2 - 1) * scale
	}
	return t
}

// analyticGrad records f on a fresh tape and returns dLoss/dx.
func analyticGrad(t *testing.T, x *tensor.RawTensor, f func(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor) []float32 {
	t.Helper()
	backend := New(cpu.New())
	backend.Tape().StartRecording()
	loss := f(backend, x)
	grads := Backward(loss, backend)
	g, ok := grads[x]
	require.True(t, ok, "no gradient reached the input")
	require.True(t, g.Shape().Equal(x.Shape()))
	return g.Data()
}

// numericGrad estimates dLoss/dx with central differences on the plain CPU backend.
func numericGrad(x *tensor.RawTensor, eps float32, f func(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor) []float64 {
	backend := cpu.New()
	out := make([]float64, x.NumElements())
	for i := range x.Data() {
		plus := x.Clone()
		plus.Data()[i] += eps
		minus := x.Clone()
		minus.Data()[i] -= eps
		lp := float64(f(backend, plus).Item())
		lm := float64(f(backend, minus).Item())
		out[i] = (lp - lm) / (2 * float64(eps))
	}
	return out
}

func assertGradClose(t *testing.T, numeric []float64, analytic []float32, rel, abs float64) {
	t.Helper()
	require.Len(t, analytic, len(numeric))
	for i := range numeric {
		tol := abs + rel*math.Abs(numeric[i])
		assert.InDelta(t, numeric[i], float64(analytic[i]), tol, "element %d", i)
	}
}

// TestGradientCheck_StylePipeline checks conv → bias → Gram → squared
// difference, combined with a content term through Scale and Add.
func TestGradientCheck_StylePipeline(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	x := randomTensor(rng, tensor.Shape{1, 2, 4, 4}, 1)
	kernel := randomTensor(rng, tensor.Shape{3, 2, 3, 3}, 0.5)
	bias := randomTensor(rng, tensor.Shape{3}, 0.1)
	targetGram := randomTensor(rng, tensor.Shape{3, 3}, 2)
	targetFeat := randomTensor(rng, tensor.Shape{1, 3, 4, 4}, 1)

	f := func(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor {
		feat := b.AddBias(b.Conv2D(x, kernel, 1, 1), bias)
		style := b.Scale(b.SquaredDiffSum(b.Gram(feat), targetGram), 0.01)
		content := b.Scale(b.SquaredDiffSum(feat, targetFeat), 0.5)
		return b.Add(content, style)
	}

	assertGradClose(t, numericGrad(x, 1e-2, f), analyticGrad(t, x, f), 2e-2, 2e-2)
}

// TestGradientCheck_ReLUMaxPool uses well separated, non-zero inputs so the
// perturbation never crosses a ReLU kink or changes a pooling winner.
func TestGradientCheck_ReLUMaxPool(t *testing.T) {
	const n = 16
	values := make([]float32, n)
	perm := rand.New(rand.NewSource(5)).Perm(n)
	for i, p := range perm {
		values[i] = float32(p-n/2)*0.1 + 0.05
	}
	x, err := tensor.FromSlice(values, tensor.Shape{1, 1, 4, 4})
	require.NoError(t, err)
	target, err := tensor.FromSlice([]float32{0.3, -0.2, 0.1, 0.4}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	f := func(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor {
		return b.SquaredDiffSum(b.MaxPool2D(b.ReLU(x), 2, 2), target)
	}

	assertGradClose(t, numericGrad(x, 1e-3, f), analyticGrad(t, x, f), 1e-2, 1e-2)
}

func TestGradientCheck_ReusedTensorAccumulates(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, -2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	zero := tensor.MustRaw(tensor.Shape{3})

	// L = Σ (x + x)² = 4 Σ x², dL/dx = 8x.
	f := func(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor {
		return b.SquaredDiffSum(b.Add(x, x), zero)
	}

	assert.Equal(t, []float32{8, -16, 24}, analyticGrad(t, x, f))
}

func TestTape_RecordingControl(t *testing.T) {
	backend := New(cpu.New())
	a := tensor.Scalar(2)

	backend.Scale(a, 3)
	assert.Equal(t, 0, backend.Tape().NumOps(), "nothing is recorded before StartRecording")

	backend.Tape().StartRecording()
	loss := backend.Scale(a, 3)
	assert.Equal(t, 1, backend.Tape().NumOps())

	grads := Backward(loss, backend)
	assert.Equal(t, float32(3), grads[a].Item())
	assert.True(t, backend.Tape().IsRecording(), "Backward restores the recording state")
	assert.Equal(t, 1, backend.Tape().NumOps(), "Backward must not record its own gradient ops")

	backend.Tape().Clear()
	assert.Equal(t, 0, backend.Tape().NumOps())
	assert.Equal(t, "Autodiff(CPU)", backend.Name())
}

func TestBackward_Panics(t *testing.T) {
	backend := New(cpu.New())
	assert.Panics(t, func() { Backward(tensor.Scalar(1), backend) })

	backend.Tape().StartRecording()
	v := backend.ReLU(tensor.MustRaw(tensor.Shape{2}))
	assert.Panics(t, func() { Backward(v, backend) })
}

func TestMaxPool2DOp_TieTakesFirst(t *testing.T) {
	backend := New(cpu.New())
	backend.Tape().StartRecording()
	x := tensor.MustRaw(tensor.Shape{1, 1, 2, 2})
	one, err := tensor.FromSlice([]float32{1}, tensor.Shape{1, 1, 1, 1})
	require.NoError(t, err)

	// d/dpool (pool - 1)² at pool = 0 is -2, all of it on the first element.
	loss := backend.SquaredDiffSum(backend.MaxPool2D(x, 2, 2), one)
	grads := Backward(loss, backend)
	assert.Equal(t, []float32{-2, 0, 0, 0}, grads[x].Data())
}
