package optim_test

import (
	"errors"
	"math"
	"testing"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/tensor"
)

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func vec(values ...float32) *tensor.RawTensor {
	t, err := tensor.FromSlice(values, tensor.Shape{len(values)})
	if err != nil {
		panic(err)
	}
	return t
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	x := vec(2.0)
	optimizer := optim.NewSGD(optim.SGDConfig{LR: 0.1})

	optimizer.Step(x, vec(1.0))

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if !floatEqual(x.Data()[0], 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want 1.9", x.Data()[0])
	}
	if optimizer.Velocity() != nil {
		t.Error("SGD without momentum should not allocate a velocity buffer")
	}
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	x := vec(1.0)
	optimizer := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// v_1 = 0.9 * 0 + 1.0 = 1.0
	// x_1 = 1.0 - 0.1 * 1.0 = 0.9
	optimizer.Step(x, vec(1.0))
	if !floatEqual(x.Data()[0], 0.9, 1e-6) {
		t.Errorf("SGD momentum step 1: got %f, want 0.9", x.Data()[0])
	}

	// v_2 = 0.9 * 1.0 + 1.0 = 1.9
	// x_2 = 0.9 - 0.1 * 1.9 = 0.71
	optimizer.Step(x, vec(1.0))
	if !floatEqual(x.Data()[0], 0.71, 1e-5) {
		t.Errorf("SGD momentum step 2: got %f, want 0.71", x.Data()[0])
	}
	if v := optimizer.Velocity().Data()[0]; !floatEqual(v, 1.9, 1e-6) {
		t.Errorf("velocity: got %f, want 1.9", v)
	}
}

// TestSGD_GetSetLR tests learning rate getter/setter.
func TestSGD_GetSetLR(t *testing.T) {
	optimizer := optim.NewSGD(optim.SGDConfig{LR: 0.01})
	if optimizer.LR() != 0.01 {
		t.Errorf("LR: got %f, want 0.01", optimizer.LR())
	}

	optimizer.SetLR(0.001)
	if optimizer.LR() != 0.001 {
		t.Errorf("LR after SetLR: got %f, want 0.001", optimizer.LR())
	}

	if d := optim.NewSGD(optim.SGDConfig{}); d.LR() != 2 {
		t.Errorf("default LR: got %f, want 2", d.LR())
	}
}

// TestAdam_SimpleUpdate tests Adam optimizer update.
func TestAdam_SimpleUpdate(t *testing.T) {
	x := vec(1.0)
	optimizer := optim.NewAdam(optim.AdamConfig{
		LR:    0.001,
		Betas: [2]float32{0.9, 0.999},
		Eps:   1e-8,
	})

	optimizer.Step(x, vec(1.0))

	// First step: m_hat = g, v_hat = g², so the update is lr * sign(g).
	if !floatEqual(x.Data()[0], 0.999, 1e-5) {
		t.Errorf("Adam first step: got %f, want 0.999", x.Data()[0])
	}
}

// TestAdam_BiasCorrection tests that Adam applies bias correction correctly.
func TestAdam_BiasCorrection(t *testing.T) {
	x := vec(1.0)
	optimizer := optim.NewAdam(optim.AdamConfig{LR: 0.01})

	if optimizer.Timestep() != 0 {
		t.Errorf("Initial timestep: got %d, want 0", optimizer.Timestep())
	}

	for i := 1; i <= 3; i++ {
		optimizer.Step(x, vec(1.0))
		if optimizer.Timestep() != i {
			t.Errorf("After step %d, timestep: got %d, want %d", i, optimizer.Timestep(), i)
		}
	}

	// A constant gradient gives a bias-corrected step of exactly lr each time.
	if !floatEqual(x.Data()[0], 0.97, 1e-4) {
		t.Errorf("After 3 Adam steps: got %f, want 0.97", x.Data()[0])
	}
}

// TestAdam_ScaleInvariant checks that Adam's step does not depend on the
// gradient magnitude, which is what makes it robust to the loss scale.
func TestAdam_ScaleInvariant(t *testing.T) {
	small := vec(0, 0)
	large := vec(0, 0)
	a := optim.NewAdam(optim.AdamConfig{LR: 1})
	b := optim.NewAdam(optim.AdamConfig{LR: 1})

	a.Step(small, vec(1e-3, -1e-3))
	b.Step(large, vec(1e6, -1e6))

	for i := range small.Data() {
		if !floatEqual(small.Data()[i], large.Data()[i], 1e-3) {
			t.Errorf("element %d: %f vs %f", i, small.Data()[i], large.Data()[i])
		}
	}
}

// TestConvergence_SimpleQuadratic tests optimizer convergence on f(x) = x².
func TestConvergence_SimpleQuadratic(t *testing.T) {
	cases := []struct {
		name string
		opt  optim.Optimizer
	}{
		{"SGD", optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})},
		{"Adam", optim.NewAdam(optim.AdamConfig{LR: 0.1})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x := vec(3.0)
			for i := 0; i < 100; i++ {
				// df/dx = 2x
				tc.opt.Step(x, vec(2*x.Data()[0]))
			}
			if final := x.Data()[0]; math.Abs(float64(final)) > 0.1 {
				t.Errorf("%s convergence: x = %f, expected close to 0", tc.name, final)
			}
		})
	}
}

// TestMultipleElements tests that every element is updated independently.
func TestMultipleElements(t *testing.T) {
	x := vec(1.0, 2.0, 3.0)
	optim.NewSGD(optim.SGDConfig{LR: 0.1}).Step(x, vec(1.0, 2.0, 0.5))

	want := []float32{0.9, 1.8, 2.95}
	for i, w := range want {
		if !floatEqual(x.Data()[i], w, 1e-6) {
			t.Errorf("x[%d]: got %f, want %f", i, x.Data()[i], w)
		}
	}
}

func TestStep_ShapeMismatchPanics(t *testing.T) {
	for _, opt := range []optim.Optimizer{optim.NewSGD(optim.SGDConfig{}), optim.NewAdam(optim.AdamConfig{})} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic on shape mismatch", opt.Name())
				}
			}()
			opt.Step(vec(1, 2), vec(1))
		}()
	}
}

func TestNew(t *testing.T) {
	sgd, err := optim.New(optim.KindSGD, optim.Config{LR: 0.5, Momentum: 0.9})
	if err != nil {
		t.Fatalf("New(sgd): %v", err)
	}
	if sgd.Name() != "sgd" || sgd.LR() != 0.5 {
		t.Errorf("New(sgd) = %s lr=%f", sgd.Name(), sgd.LR())
	}

	adam, err := optim.New(optim.KindAdam, optim.Config{})
	if err != nil {
		t.Fatalf("New(adam): %v", err)
	}
	if adam.Name() != "adam" || adam.LR() != 2 {
		t.Errorf("New(adam) = %s lr=%f", adam.Name(), adam.LR())
	}

	bad := []struct {
		kind string
		cfg  optim.Config
	}{
		{"lbfgs", optim.Config{}},
		{optim.KindSGD, optim.Config{Momentum: 1}},
		{optim.KindSGD, optim.Config{LR: -1}},
		{optim.KindAdam, optim.Config{Betas: [2]float32{0.9, 1.5}}},
	}
	for _, tc := range bad {
		_, err := optim.New(tc.kind, tc.cfg)
		if !errors.Is(err, errs.ErrConfiguration) {
			t.Errorf("New(%q, %+v): got %v, want configuration error", tc.kind, tc.cfg, err)
		}
	}
}
