// Package optim implements the update rules applied to the generated image.
//
// This package provides:
//   - Optimizer interface: one update of a parameter tensor from its gradient
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Unlike a training loop there is exactly one parameter, the pixels of the
// generated image, and it is updated in place.
//
// Example usage:
//
//	opt, err := optim.New(optim.KindAdam, optim.Config{LR: 2})
//
//	for it := range iterations {
//	    backend.Tape().StartRecording()
//	    loss := objective(backend, image)
//	    grads := autodiff.Backward(loss, backend)
//	    opt.Step(image, grads[image])
//	    backend.Tape().Clear()
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/tensor"
)

// Optimizer is the base interface for all update rules.
type Optimizer interface {
	// Step updates param in place from grad.
	//
	// param and grad must have the same shape. State (velocity, moments) is
	// keyed to the first param seen; passing a different shape later panics.
	Step(param, grad *tensor.RawTensor)

	// LR returns the current learning rate.
	LR() float32

	// Name identifies the rule ("sgd", "adam").
	Name() string
}

// Kinds accepted by New.
const (
	KindSGD  = "sgd"
	KindAdam = "adam"
)

// Config is the union of every rule's hyperparameters. Zero values select
// each rule's defaults.
type Config struct {
	LR       float32    // Learning rate
	Momentum float32    // SGD only, range [0, 1)
	Betas    [2]float32 // Adam only
	Eps      float32    // Adam only
}

// New creates the optimizer named kind.
func New(kind string, cfg Config) (Optimizer, error) {
	if cfg.LR < 0 {
		return nil, errs.Configurationf("optim.New", "learning rate must be positive, got %v", cfg.LR)
	}
	switch kind {
	case KindSGD:
		if cfg.Momentum < 0 || cfg.Momentum >= 1 {
			return nil, errs.Configurationf("optim.New", "momentum must be in [0, 1), got %v", cfg.Momentum)
		}
		return NewSGD(SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}), nil
	case KindAdam:
		for _, b := range cfg.Betas {
			if b < 0 || b >= 1 {
				return nil, errs.Configurationf("optim.New", "adam betas must be in [0, 1), got %v", cfg.Betas)
			}
		}
		return NewAdam(AdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps}), nil
	default:
		return nil, errs.Configurationf("optim.New", "unknown optimizer %q (want %s or %s)", kind, KindSGD, KindAdam)
	}
}

func checkStep(param, grad *tensor.RawTensor) {
	if !param.Shape().Equal(grad.Shape()) {
		panic(fmt.Sprintf("optim: grad shape %v does not match param shape %v", grad.Shape(), param.Shape()))
	}
}

// stateFor returns state for param, allocating zeros on first use.
func stateFor(state **tensor.RawTensor, param *tensor.RawTensor) []float32 {
	if *state == nil {
		*state = tensor.MustRaw(param.Shape())
	}
	if (*state).NumElements() != param.NumElements() {
		panic(fmt.Sprintf("optim: param shape changed from %v to %v", (*state).Shape(), param.Shape()))
	}
	return (*state).Data()
}
