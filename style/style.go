// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package style

import (
	"context"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/imaging"
	"github.com/born-ml/stylize/internal/loss"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/stylize"
	"github.com/born-ml/stylize/internal/vgg"
)

// Config holds the parameters of one run. Start from DefaultConfig.
type Config = stylize.Config

// Run is one optimization. Use NewRun, Start and Optimize to drive it step by
// step, or Transfer for the common case.
type Run = stylize.Run

// Result is the outcome of a run.
type Result = stylize.Result

// State is the lifecycle state of a run.
type State = stylize.State

// Run states.
const (
	StateNew             State = stylize.StateNew
	StateInitialized     State = stylize.StateInitialized
	StateRunning         State = stylize.StateRunning
	StateConverged       State = stylize.StateConverged
	StateBudgetExhausted State = stylize.StateBudgetExhausted
	StateFailed          State = stylize.StateFailed
	StateCanceled        State = stylize.StateCanceled
)

// Config.Optimizer values.
const (
	OptimizerAdam = optim.KindAdam
	OptimizerSGD  = optim.KindSGD
)

// Option configures a run.
type Option = stylize.Option

// Progress is reported after every iteration.
type Progress = stylize.Progress

// ProgressFunc receives progress reports.
type ProgressFunc = stylize.ProgressFunc

// Breakdown holds the loss terms of one iteration.
type Breakdown = loss.Breakdown

// WeightPolicy assigns a weight to each style layer, shallowest first.
type WeightPolicy = loss.WeightPolicy

// Extractor is a VGG19 feature extractor.
type Extractor = vgg.Extractor

// LoadOptions configures LoadExtractor.
type LoadOptions = vgg.Options

// Image is an RGB image with channels in [0, 255].
type Image = imaging.RawImage

// Frame, FrameResult and BatchOptions describe a batch of independent runs.
type (
	Frame        = stylize.Frame
	FrameResult  = stylize.FrameResult
	BatchOptions = stylize.BatchOptions
)

// Error classes, matched with errors.Is.
var (
	ErrConfiguration = errs.ErrConfiguration
	ErrResource      = errs.ErrResource
	ErrFormat        = errs.ErrFormat
	ErrNumerical     = errs.ErrNumerical
)

// Option constructors.
var (
	WithLogger   = stylize.WithLogger
	WithProgress = stylize.WithProgress
)

// DefaultConfig returns the standard configuration: content at
// block4_conv2, style at block1_conv1 through block5_conv1, Adam with
// learning rate 2 and 1000 iterations.
func DefaultConfig() Config {
	return stylize.DefaultConfig()
}

// LoadExtractor reads VGG19 weights from a SafeTensors file.
func LoadExtractor(path string, opts LoadOptions) (*Extractor, error) {
	return vgg.Load(path, opts)
}

// RandomExtractor builds a seeded extractor whose channel widths are
// divided by divisor.
func RandomExtractor(seed int64, divisor int) (*Extractor, error) {
	return vgg.NewRandom(seed, divisor)
}

// NewRun validates cfg against e and returns a run in state StateNew.
func NewRun(e *Extractor, cfg Config, opts ...Option) (*Run, error) {
	return stylize.NewRun(e, cfg, opts...)
}

// Transfer stylizes content with style and returns the result.
//
// On cancellation or numerical failure the result is still returned
// alongside the error.
func Transfer(ctx context.Context, e *Extractor, cfg Config, content, style *Image, opts ...Option) (*Result, error) {
	return stylize.Transfer(ctx, e, cfg, content, style, opts...)
}

// Batch stylizes frames concurrently with one style image.
func Batch(ctx context.Context, e *Extractor, cfg Config, style *Image, frames []Frame, opts BatchOptions) ([]FrameResult, error) {
	return stylize.Batch(ctx, e, cfg, style, frames, opts)
}

// ParsePolicy parses a style weight policy such as "linear:0.5,0.5",
// "uniform:1" or "explicit:1,2,3".
func ParsePolicy(s string) (WeightPolicy, error) {
	return loss.ParsePolicy(s)
}

// LoadImage decodes a PNG, JPEG, GIF, BMP, TIFF or WebP file.
func LoadImage(path string) (*Image, error) {
	return imaging.Load(path)
}

// SaveImage encodes img by path's extension and writes it atomically.
func SaveImage(path string, img *Image) error {
	return imaging.Save(path, img)
}
