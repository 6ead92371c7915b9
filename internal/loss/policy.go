package loss

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/stylize/internal/errs"
)

// WeightPolicy produces per-layer style weights for n style layers ordered
// from shallowest to deepest.
type WeightPolicy interface {
	Weights(n int) ([]float64, error)
	String() string
}

// LinearDepth weights layer i (0 = shallowest) with Base + Step·i.
type LinearDepth struct {
	Base float64
	Step float64
}

// DefaultPolicy returns LinearDepth{0.5, 0.5}: 0.5, 1, 1.5, ...
func DefaultPolicy() WeightPolicy {
	return LinearDepth{Base: 0.5, Step: 0.5}
}

// Weights implements WeightPolicy.
func (p LinearDepth) Weights(n int) ([]float64, error) {
	w := make([]float64, n)
	for i := range w {
		w[i] = p.Base + p.Step*float64(i)
	}
	return w, nil
}

func (p LinearDepth) String() string {
	return fmt.Sprintf("linear:%s,%s", ftoa(p.Base), ftoa(p.Step))
}

// Uniform weights every layer with Value.
type Uniform struct {
	Value float64
}

// Weights implements WeightPolicy.
func (p Uniform) Weights(n int) ([]float64, error) {
	w := make([]float64, n)
	for i := range w {
		w[i] = p.Value
	}
	return w, nil
}

func (p Uniform) String() string {
	return "uniform:" + ftoa(p.Value)
}

// Explicit lists one weight per layer.
type Explicit struct {
	Values []float64
}

// Weights implements WeightPolicy.
func (p Explicit) Weights(n int) ([]float64, error) {
	if len(p.Values) != n {
		return nil, errs.Configurationf("loss.Explicit", "%d weights for %d style layers", len(p.Values), n)
	}
	return append([]float64(nil), p.Values...), nil
}

func (p Explicit) String() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = ftoa(v)
	}
	return "explicit:" + strings.Join(parts, ",")
}

// ParsePolicy parses linear:BASE,STEP, uniform:VALUE or explicit:W1,W2,...
// A bare "linear" means DefaultPolicy and a bare "uniform" means weight 1.
func ParsePolicy(s string) (WeightPolicy, error) {
	const op = "loss.ParsePolicy"
	kind, args, _ := strings.Cut(strings.TrimSpace(s), ":")
	values, err := parseFloats(args)
	if err != nil {
		return nil, errs.Configurationf(op, "policy %q: %v", s, err)
	}

	switch kind {
	case "linear":
		switch len(values) {
		case 0:
			return DefaultPolicy(), nil
		case 2:
			return LinearDepth{Base: values[0], Step: values[1]}, nil
		}
		return nil, errs.Configurationf(op, "policy %q: linear takes BASE,STEP", s)
	case "uniform":
		switch len(values) {
		case 0:
			return Uniform{Value: 1}, nil
		case 1:
			return Uniform{Value: values[0]}, nil
		}
		return nil, errs.Configurationf(op, "policy %q: uniform takes one value", s)
	case "explicit":
		if len(values) == 0 {
			return nil, errs.Configurationf(op, "policy %q: explicit needs at least one weight", s)
		}
		return Explicit{Values: values}, nil
	default:
		return nil, errs.Configurationf(op, "unknown weight policy %q (want linear, uniform or explicit)", s)
	}
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
