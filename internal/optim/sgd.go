package optim

import (
	"github.com/born-ml/stylize/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	lr       float32
	momentum float32
	velocity *tensor.RawTensor
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 2)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 2
	}
	return &SGD{
		lr:       config.LR,
		momentum: config.Momentum,
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(param, grad *tensor.RawTensor) {
	checkStep(param, grad)
	p := param.Data()
	g := grad.Data()

	if s.momentum == 0 {
		for i := range p {
			p[i] -= s.lr * g[i]
		}
		return
	}

	v := stateFor(&s.velocity, param)
	for i := range p {
		v[i] = s.momentum*v[i] + g[i]
		p[i] -= s.lr * v[i]
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// Name returns "sgd".
func (s *SGD) Name() string {
	return KindSGD
}

// Velocity returns the momentum buffer, or nil before the first momentum step.
func (s *SGD) Velocity() *tensor.RawTensor {
	return s.velocity
}
