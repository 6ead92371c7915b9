// Package config resolves run settings from defaults, an optional config
// file, STYLIZE_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/loss"
	"github.com/born-ml/stylize/internal/stylize"
	"github.com/born-ml/stylize/internal/vgg"
)

// EnvPrefix prefixes every environment variable, e.g. STYLIZE_NOISE_RATIO.
const EnvPrefix = "STYLIZE"

// Settings is the flat, externally settable surface of a run.
type Settings struct {
	ContentLayer string   `mapstructure:"content-layer" validate:"required"`
	StyleLayers  []string `mapstructure:"style-layers" validate:"min=1,dive,required"`
	Alpha        float64  `mapstructure:"alpha" validate:"gte=0"`
	Beta         float64  `mapstructure:"beta" validate:"gte=0"`
	StyleWeights string   `mapstructure:"style-weights" validate:"required"`

	Optimizer string  `mapstructure:"optimizer" validate:"oneof=adam sgd"`
	LR        float32 `mapstructure:"lr" validate:"gt=0"`
	Momentum  float32 `mapstructure:"momentum" validate:"gte=0,lt=1"`
	Beta1     float32 `mapstructure:"beta1" validate:"gte=0,lt=1"`
	Beta2     float32 `mapstructure:"beta2" validate:"gte=0,lt=1"`
	Eps       float32 `mapstructure:"eps" validate:"gt=0"`

	NoiseRatio float64 `mapstructure:"noise-ratio" validate:"gte=0,lte=1"`
	NoiseRange float64 `mapstructure:"noise-range" validate:"gte=0"`
	Seed       int64   `mapstructure:"seed"`

	Iterations           int     `mapstructure:"iterations" validate:"min=1"`
	ConvergenceWindow    int     `mapstructure:"convergence-window" validate:"min=1"`
	ConvergenceThreshold float64 `mapstructure:"convergence-threshold" validate:"gte=0"`
	ResizeStyle          bool    `mapstructure:"resize-style"`

	Weights       string `mapstructure:"weights" validate:"required_without=RandomWeights"`
	WeightsSHA256 string `mapstructure:"weights-sha256" validate:"omitempty,len=64,hexadecimal"`
	WeightsScheme string `mapstructure:"weights-scheme" validate:"omitempty,oneof=torchvision keras native"`
	RandomWeights int    `mapstructure:"random-weights" validate:"omitempty,oneof=1 2 4 8 16 32 64"`

	Workers int     `mapstructure:"workers" validate:"min=1"`
	FPS     float64 `mapstructure:"fps" validate:"gt=0"`

	LogLevel  string `mapstructure:"log-level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log-format" validate:"oneof=text json"`
}

// Default returns the settings used when nothing overrides them.
func Default() Settings {
	run := stylize.DefaultConfig()
	return Settings{
		ContentLayer:         run.ContentLayer,
		StyleLayers:          run.StyleLayers,
		Alpha:                run.Alpha,
		Beta:                 run.Beta,
		StyleWeights:         run.StylePolicy.String(),
		Optimizer:            run.Optimizer,
		LR:                   run.LR,
		Momentum:             run.Momentum,
		Beta1:                run.Betas[0],
		Beta2:                run.Betas[1],
		Eps:                  run.Eps,
		NoiseRatio:           run.NoiseRatio,
		NoiseRange:           run.NoiseRange,
		Seed:                 run.Seed,
		Iterations:           run.MaxIterations,
		ConvergenceWindow:    run.ConvergenceWindow,
		ConvergenceThreshold: run.ConvergenceThreshold,
		ResizeStyle:          run.ResizeStyle,
		Workers:              1,
		FPS:                  30,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// RegisterFlags defines one flag per setting on fs, defaulting to Default().
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("content-layer", d.ContentLayer, "layer compared with the content image")
	fs.StringSlice("style-layers", d.StyleLayers, "layers compared with the style image")
	fs.Float64("alpha", d.Alpha, "content loss weight")
	fs.Float64("beta", d.Beta, "style loss weight")
	fs.String("style-weights", d.StyleWeights, "per-layer style weights: linear:BASE,STEP | uniform:W | explicit:W1,W2,... (in --style-layers order)")

	fs.String("optimizer", d.Optimizer, "update rule: adam or sgd")
	fs.Float32("lr", d.LR, "learning rate")
	fs.Float32("momentum", d.Momentum, "sgd momentum")
	fs.Float32("beta1", d.Beta1, "adam first moment decay")
	fs.Float32("beta2", d.Beta2, "adam second moment decay")
	fs.Float32("eps", d.Eps, "adam epsilon")

	fs.Float64("noise-ratio", d.NoiseRatio, "share of noise in the initial image")
	fs.Float64("noise-range", d.NoiseRange, "initial noise is uniform in [-range, range]")
	fs.Int64("seed", d.Seed, "noise seed")

	fs.Int("iterations", d.Iterations, "maximum number of iterations")
	fs.Int("convergence-window", d.ConvergenceWindow, "iterations compared by the convergence test")
	fs.Float64("convergence-threshold", d.ConvergenceThreshold, "stop when relative improvement over the window is below this (0 disables)")
	fs.Bool("resize-style", d.ResizeStyle, "resize the style image to the content size")

	fs.String("weights", d.Weights, "VGG19 weights (.safetensors)")
	fs.String("weights-sha256", d.WeightsSHA256, "expected SHA-256 of the weights file")
	fs.String("weights-scheme", d.WeightsScheme, "weight naming: torchvision, keras or native (default: detect)")
	fs.Int("random-weights", d.RandomWeights, "use random weights with widths divided by N instead of a weights file")

	fs.Int("workers", d.Workers, "frames stylized concurrently")
	fs.Float64("fps", d.FPS, "output video frame rate")

	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.String("log-format", d.LogFormat, "text or json")
}

// Load resolves settings. configFile may be empty; flags may be nil.
//
// A missing config file is a resource error, an unparsable one a format
// error, and invalid values a single configuration error listing every
// problem.
func Load(configFile string, flags *pflag.FlagSet) (*Settings, error) {
	const op = "config.Load"
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				return nil, errs.Resource(op, configFile, err)
			}
			return nil, errs.Format(op, configFile, err)
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errs.Configuration(op, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, errs.Configuration(op, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// setDefaults registers every key so environment variables are seen even
// without a matching flag.
func setDefaults(v *viper.Viper) {
	d := Default()
	t := reflect.TypeOf(d)
	val := reflect.ValueOf(d)
	for i := range t.NumField() {
		v.SetDefault(t.Field(i).Tag.Get("mapstructure"), val.Field(i).Interface())
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	vd := validator.New(validator.WithRequiredStructEnabled())
	vd.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return vd
}

// Validate checks every field, then the combinations between them.
func (s *Settings) Validate() error {
	const op = "config.Validate"
	if verr := validate.Struct(s); verr != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(verr, &fieldErrs) {
			return errs.Configuration(op, verr)
		}
		var err error
		for _, fe := range fieldErrs {
			err = multierr.Append(err, fieldError(fe))
		}
		return errs.Configuration(op, err)
	}

	run, err := s.Run()
	if err != nil {
		return err
	}
	return run.Validate(nil)
}

func fieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		if fe.Param() != "" {
			return fmt.Errorf("%s must satisfy %s=%s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("%s must satisfy %s, got %v", fe.Field(), fe.Tag(), fe.Value())
	}
}

// Run converts the settings into an optimizer configuration.
func (s *Settings) Run() (stylize.Config, error) {
	policy, err := loss.ParsePolicy(s.StyleWeights)
	if err != nil {
		return stylize.Config{}, err
	}
	return stylize.Config{
		ContentLayer:         s.ContentLayer,
		StyleLayers:          s.StyleLayers,
		Alpha:                s.Alpha,
		Beta:                 s.Beta,
		StylePolicy:          policy,
		Optimizer:            s.Optimizer,
		LR:                   s.LR,
		Momentum:             s.Momentum,
		Betas:                [2]float32{s.Beta1, s.Beta2},
		Eps:                  s.Eps,
		NoiseRatio:           s.NoiseRatio,
		NoiseRange:           s.NoiseRange,
		Seed:                 s.Seed,
		MaxIterations:        s.Iterations,
		ConvergenceWindow:    s.ConvergenceWindow,
		ConvergenceThreshold: s.ConvergenceThreshold,
		ResizeStyle:          s.ResizeStyle,
	}, nil
}

// Extractor loads the configured weights, or builds random ones when
// RandomWeights is set.
func (s *Settings) Extractor(logger *slog.Logger) (*vgg.Extractor, error) {
	if s.RandomWeights > 0 {
		logger.Warn("using random extractor weights; results have no artistic meaning",
			slog.Int("width_divisor", s.RandomWeights), slog.Int64("seed", s.Seed))
		return vgg.NewRandom(s.Seed, s.RandomWeights)
	}
	return vgg.Load(s.Weights, vgg.Options{
		SHA256: s.WeightsSHA256,
		Scheme: s.WeightsScheme,
		Logger: logger,
	})
}

// Logger builds the configured slog logger writing to w.
func (s *Settings) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
