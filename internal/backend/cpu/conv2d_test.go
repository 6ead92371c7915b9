package cpu

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
	"pgregory.net/rapid"
)

// naiveConv2D is the textbook seven-loop convolution used as a reference.
func naiveConv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	s := input.Shape()
	k := kernel.Shape()
	N, CIn, H, W := s[0], s[1], s[2], s[3]
	COut, KH, KW := k[0], k[2], k[3]
	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	out := tensor.MustRaw(tensor.Shape{N, COut, HOut, WOut})
	for n := 0; n < N; n++ {
		for oc := 0; oc < COut; oc++ {
			for oh := 0; oh < HOut; oh++ {
				for ow := 0; ow < WOut; ow++ {
					var sum float32
					for ic := 0; ic < CIn; ic++ {
						for kh := 0; kh < KH; kh++ {
							for kw := 0; kw < KW; kw++ {
								ih := oh*stride + kh - padding
								iw := ow*stride + kw - padding
								if ih < 0 || ih >= H || iw < 0 || iw >= W {
									continue
								}
								sum += input.At(n, ic, ih, iw) * kernel.At(oc, ic, kh, kw)
							}
						}
					}
					out.Set(sum, n, oc, oh, ow)
				}
			}
		}
	}
	return out
}

func randomRaw(rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	t := tensor.MustRaw(shape)
	for i := range t.Data() {
		t.Data()[i] = rng.Float32()*2 - 1
	}
	return t
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// TestConv2D_BasicForward tests basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// Input: [1, 1, 3, 3]
	// 1 2 3
	// 4 5 6
	// 7 8 9
	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})

	// Kernel: [1, 1, 2, 2]
	// 1 0
	// 0 1
	kernel, _ := tensor.FromSlice([]float32{1, 0, 0, 1}, tensor.Shape{1, 1, 2, 2})

	output := backend.Conv2D(input, kernel, 1, 0)

	expectedShape := tensor.Shape{1, 1, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Diagonal sums of each 2x2 patch.
	expected := []float32{6, 8, 12, 14}
	for i, exp := range expected {
		if output.Data()[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, output.Data()[i])
		}
	}
}

// TestConv2D_SamePadding checks the 3x3/stride 1/padding 1 configuration VGG uses.
func TestConv2D_SamePadding(t *testing.T) {
	backend := New()

	input, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 1, 3, 3})
	ones := tensor.MustRaw(tensor.Shape{1, 1, 3, 3})
	for i := range ones.Data() {
		ones.Data()[i] = 1
	}

	output := backend.Conv2D(input, ones, 1, 1)
	if !output.Shape().Equal(tensor.Shape{1, 1, 3, 3}) {
		t.Fatalf("Expected shape [1 1 3 3], got %v", output.Shape())
	}

	// Each output is the sum of the in-bounds 3x3 neighbourhood.
	expected := []float32{12, 21, 16, 27, 45, 33, 24, 39, 28}
	for i, exp := range expected {
		if output.Data()[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, output.Data()[i])
		}
	}
}

func TestConv2D_MatchesNaive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 2).Draw(t, "n")
		cin := rapid.IntRange(1, 3).Draw(t, "cin")
		cout := rapid.IntRange(1, 3).Draw(t, "cout")
		k := rapid.IntRange(1, 3).Draw(t, "k")
		stride := rapid.IntRange(1, 2).Draw(t, "stride")
		padding := rapid.IntRange(0, 2).Draw(t, "padding")
		h := rapid.IntRange(k, 7).Draw(t, "h")
		w := rapid.IntRange(k, 7).Draw(t, "w")
		seed := rapid.Int64().Draw(t, "seed")

		rng := rand.New(rand.NewSource(seed))
		input := randomRaw(rng, tensor.Shape{n, cin, h, w})
		kernel := randomRaw(rng, tensor.Shape{cout, cin, k, k})

		got := New().Conv2D(input, kernel, stride, padding)
		want := naiveConv2D(input, kernel, stride, padding)

		if !got.Shape().Equal(want.Shape()) {
			t.Fatalf("shape %v, want %v", got.Shape(), want.Shape())
		}
		for i := range want.Data() {
			if math.Abs(float64(got.Data()[i]-want.Data()[i])) > 1e-4 {
				t.Fatalf("output[%d] = %v, want %v", i, got.Data()[i], want.Data()[i])
			}
		}
	})
}

// TestConv2DInputBackward_Adjoint checks <conv(x), g> == <x, convᵀ(g)>,
// which holds exactly when the backward pass is the transpose of the forward.
func TestConv2DInputBackward_Adjoint(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cin := rapid.IntRange(1, 3).Draw(t, "cin")
		cout := rapid.IntRange(1, 3).Draw(t, "cout")
		k := rapid.IntRange(1, 3).Draw(t, "k")
		stride := rapid.IntRange(1, 2).Draw(t, "stride")
		padding := rapid.IntRange(0, 1).Draw(t, "padding")
		h := rapid.IntRange(k, 6).Draw(t, "h")
		w := rapid.IntRange(k, 6).Draw(t, "w")
		seed := rapid.Int64().Draw(t, "seed")

		rng := rand.New(rand.NewSource(seed))
		backend := New()
		x := randomRaw(rng, tensor.Shape{1, cin, h, w})
		kernel := randomRaw(rng, tensor.Shape{cout, cin, k, k})

		y := backend.Conv2D(x, kernel, stride, padding)
		g := randomRaw(rng, y.Shape())
		dx := backend.Conv2DInputBackward(x, kernel, g, stride, padding)

		lhs := dot(y.Data(), g.Data())
		rhs := dot(x.Data(), dx.Data())
		if math.Abs(lhs-rhs) > 1e-3*(1+math.Abs(lhs)) {
			t.Fatalf("<conv(x), g> = %v, <x, convT(g)> = %v", lhs, rhs)
		}
	})
}

func TestConv2D_SequentialMatchesParallel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	input := randomRaw(rng, tensor.Shape{1, 4, 9, 9})
	kernel := randomRaw(rng, tensor.Shape{6, 4, 3, 3})

	par := New(WithParallel(parallel.Config{Workers: 4, MinItems: 1})).Conv2D(input, kernel, 1, 1)
	seq := New(WithParallel(parallel.Sequential())).Conv2D(input, kernel, 1, 1)

	for i := range seq.Data() {
		if par.Data()[i] != seq.Data()[i] {
			t.Fatalf("output[%d]: parallel %v, sequential %v", i, par.Data()[i], seq.Data()[i])
		}
	}
}

func TestConv2D_InvalidShapesPanic(t *testing.T) {
	backend := New()
	input := tensor.MustRaw(tensor.Shape{1, 2, 4, 4})
	kernel := tensor.MustRaw(tensor.Shape{1, 3, 3, 3})

	defer func() {
		if recover() == nil {
			t.Error("expected panic on channel mismatch")
		}
	}()
	backend.Conv2D(input, kernel, 1, 1)
}

func TestAddBias(t *testing.T) {
	backend := New()
	x := tensor.MustRaw(tensor.Shape{1, 2, 2, 2})
	bias, _ := tensor.FromSlice([]float32{1, -3}, tensor.Shape{2})

	out := backend.AddBias(x, bias)
	expected := []float32{1, 1, 1, 1, -3, -3, -3, -3}
	for i, exp := range expected {
		if out.Data()[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, out.Data()[i])
		}
	}
}
