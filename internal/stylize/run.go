// Package stylize runs the pixel optimization of neural style transfer.
//
// A Run owns the generated image and nothing else: the extractor is shared
// read-only, the reference is built once per run, and per-iteration losses
// are returned as values.
//
//	run, err := stylize.NewRun(extractor, stylize.DefaultConfig(), stylize.WithLogger(logger))
//	if err := run.Start(content, style); err != nil { ... }
//	res, err := run.Optimize(ctx)
package stylize

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/stylize/internal/autodiff"
	"github.com/born-ml/stylize/internal/backend/cpu"
	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/imaging"
	"github.com/born-ml/stylize/internal/loss"
	"github.com/born-ml/stylize/internal/optim"
	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/tensor"
	"github.com/born-ml/stylize/internal/vgg"
)

// relEps guards the relative improvement against a zero loss.
const relEps = 1e-12

// Progress is reported after every iteration.
type Progress struct {
	Run       string
	Iteration int // 1-based
	Loss      loss.Breakdown
	Elapsed   time.Duration
}

// ProgressFunc receives progress reports synchronously on the run's goroutine.
type ProgressFunc func(Progress)

// Option configures a Run.
type Option func(*Run)

// WithLogger sets the logger. The run adds a "run" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(r *Run) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithProgress sets the per-iteration callback.
func WithProgress(f ProgressFunc) Option {
	return func(r *Run) {
		r.progress = f
	}
}

// WithParallel sets how the run's kernels spread across goroutines.
func WithParallel(cfg parallel.Config) Option {
	return func(r *Run) {
		r.par = cfg
	}
}

// Result is the outcome of Optimize.
type Result struct {
	Run        string
	State      State
	Image      *imaging.RawImage // generated image, or the last finite one after a failure
	Iterations int
	History    []loss.Breakdown
	Elapsed    time.Duration
}

// FinalLoss returns the total loss of the last iteration, or NaN if none ran.
func (r *Result) FinalLoss() float64 {
	if len(r.History) == 0 {
		return math.NaN()
	}
	return r.History[len(r.History)-1].Total
}

// Run is one optimization of one generated image. It is not safe for
// concurrent use; run many Runs in parallel instead.
type Run struct {
	id        string
	extractor *vgg.Extractor
	cfg       Config
	weights   loss.Weights
	layers    []string
	logger    *slog.Logger
	progress  ProgressFunc
	par       parallel.Config

	state   State
	plain   *cpu.CPUBackend
	backend *autodiff.AutodiffBackend[*cpu.CPUBackend]
	opt     optim.Optimizer
	ref     *Reference
	image   *imaging.Normalized
	good    *imaging.Normalized // last image with finite loss and gradient
	history []loss.Breakdown
}

// NewRun validates cfg against e and returns a run in StateNew.
func NewRun(e *vgg.Extractor, cfg Config, opts ...Option) (*Run, error) {
	if e == nil {
		return nil, errs.Configurationf("stylize.NewRun", "nil extractor")
	}
	if err := cfg.Validate(e); err != nil {
		return nil, err
	}
	cfg.StyleLayers = cfg.weightOrder(e)
	styleWeights, err := cfg.StylePolicy.Weights(len(cfg.StyleLayers))
	if err != nil {
		return nil, errs.Configuration("stylize.NewRun", err)
	}

	r := &Run{
		id:        uuid.NewString(),
		extractor: e,
		cfg:       cfg,
		weights:   loss.Weights{Alpha: cfg.Alpha, Beta: cfg.Beta, Style: styleWeights},
		layers:    cfg.layers(),
		logger:    slog.New(slog.DiscardHandler),
		par:       parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("run", r.id))
	return r, nil
}

// ID returns the run's unique identifier.
func (r *Run) ID() string {
	return r.id
}

// State returns the current state.
func (r *Run) State() State {
	return r.state
}

// Reference returns the targets built by Start, or nil before it.
func (r *Run) Reference() *Reference {
	return r.ref
}

// Start checks the inputs, builds the reference and initializes the
// generated image as ratio·noise + (1-ratio)·content.
//
// Every dimension problem is reported here, before any iteration.
func (r *Run) Start(content, style *imaging.RawImage) error {
	const op = "stylize.Start"
	if r.state != StateNew {
		return errs.Configurationf(op, "run already started (state %s)", r.state)
	}

	minSize, err := r.extractor.MinSize(r.layers)
	if err != nil {
		return err
	}
	if content.Width < minSize || content.Height < minSize {
		return errs.Configurationf(op, "content image %dx%d is smaller than the %dx%d the selected layers need",
			content.Width, content.Height, minSize, minSize)
	}
	if style.Width != content.Width || style.Height != content.Height {
		if !r.cfg.ResizeStyle {
			return errs.Configurationf(op, "style image is %dx%d but content is %dx%d",
				style.Width, style.Height, content.Width, content.Height)
		}
		r.logger.Debug("resizing style image",
			slog.Int("from_width", style.Width), slog.Int("from_height", style.Height),
			slog.Int("to_width", content.Width), slog.Int("to_height", content.Height))
		style = imaging.Resize(style, content.Width, content.Height)
	}

	r.plain = cpu.New(cpu.WithParallel(r.par))
	contentN := imaging.ToExtractorSpace(content)
	ref, err := NewReference(r.extractor, r.plain, contentN, imaging.ToExtractorSpace(style), r.cfg.ContentLayer, r.cfg.StyleLayers)
	if err != nil {
		return err
	}

	opt, err := optim.New(r.cfg.Optimizer, r.cfg.optimConfig())
	if err != nil {
		return err
	}

	r.ref = ref
	r.opt = opt
	r.image = initialImage(contentN, r.cfg.NoiseRatio, r.cfg.NoiseRange, r.cfg.Seed)
	r.good = r.image.Clone()
	r.backend = autodiff.New(r.plain)
	r.state = StateInitialized

	r.logger.Info("run initialized",
		slog.Int("width", content.Width),
		slog.Int("height", content.Height),
		slog.String("optimizer", opt.Name()),
		slog.String("extractor", r.extractor.Source()))
	return nil
}

// initialImage blends uniform noise in [-noiseRange, noiseRange] with the
// content image. The blend happens in extractor space.
func initialImage(content *imaging.Normalized, ratio, noiseRange float64, seed int64) *imaging.Normalized {
	//nolint:gosec // G404: initialization noise is not security-critical
	rng := rand.New(rand.NewSource(seed))
	out := content.Clone()
	data := out.Tensor().Data()
	for i, c := range data {
		noise := (rng.Float64()*2 - 1) * noiseRange
		data[i] = float32(ratio*noise + (1-ratio)*float64(c))
	}
	return out
}

// Optimize iterates until the run converges, exhausts its budget, fails
// numerically or ctx is done.
//
// A Canceled result carries ctx's error. A Failed result carries a
// numerical error and the last finite image. The result is never nil after
// Start succeeded.
func (r *Run) Optimize(ctx context.Context) (*Result, error) {
	if r.state != StateInitialized {
		return nil, errs.Configurationf("stylize.Optimize", "run is %s, want %s", r.state, StateInitialized)
	}
	r.state = StateRunning
	started := time.Now()
	tape := r.backend.Tape()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	var runErr error
	for r.state == StateRunning {
		if err := ctx.Err(); err != nil {
			r.state = StateCanceled
			runErr = err
			break
		}

		br, err := r.step()
		if err != nil {
			r.state = StateFailed
			runErr = err
			break
		}
		r.history = append(r.history, br)
		it := len(r.history)

		if r.progress != nil {
			r.progress(Progress{Run: r.id, Iteration: it, Loss: br, Elapsed: time.Since(started)})
		}
		r.logger.Debug("iteration",
			slog.Int("iteration", it),
			slog.Float64("loss", br.Total),
			slog.Float64("content", br.Content),
			slog.Float64("style", br.Style))

		switch {
		case r.converged():
			r.state = StateConverged
		case it >= r.cfg.MaxIterations:
			r.state = StateBudgetExhausted
		}
	}

	res := r.result(time.Since(started))
	attrs := []any{
		slog.String("state", res.State.String()),
		slog.Int("iterations", res.Iterations),
		slog.Float64("loss", res.FinalLoss()),
		slog.Duration("elapsed", res.Elapsed),
	}
	if runErr != nil {
		r.logger.Warn("run stopped", append(attrs, slog.Any("error", runErr))...)
	} else {
		r.logger.Info("run finished", attrs...)
	}
	return res, runErr
}

// step runs one forward/backward pass and one update.
func (r *Run) step() (loss.Breakdown, error) {
	const op = "stylize.step"
	tape := r.backend.Tape()
	tape.Clear()
	tape.StartRecording()

	acts, err := r.extractor.Extract(r.backend, r.image, r.layers)
	if err != nil {
		return loss.Breakdown{}, err
	}
	total, br, err := r.ref.Objective(r.backend, acts, r.weights)
	if err != nil {
		return loss.Breakdown{}, err
	}
	tape.StopRecording()

	it := len(r.history) + 1
	if !total.AllFinite() {
		return br, errs.Numericalf(op, "loss is %v at iteration %d", total.Item(), it)
	}

	pixels := r.image.Tensor()
	grad := autodiff.Backward(total, r.backend)[pixels]
	tape.Clear()
	if grad == nil {
		grad = tensor.MustRaw(pixels.Shape())
	}
	if !grad.AllFinite() {
		return br, errs.Numericalf(op, "gradient is not finite at iteration %d", it)
	}

	copy(r.good.Tensor().Data(), pixels.Data())
	r.opt.Step(pixels, grad)
	return br, nil
}

// converged compares the loss now with the loss Window iterations ago.
func (r *Run) converged() bool {
	w := r.cfg.ConvergenceWindow
	if r.cfg.ConvergenceThreshold <= 0 || len(r.history) < w+1 {
		return false
	}
	now := r.history[len(r.history)-1].Total
	then := r.history[len(r.history)-1-w].Total
	return (then-now)/math.Max(math.Abs(then), relEps) < r.cfg.ConvergenceThreshold
}

func (r *Run) result(elapsed time.Duration) *Result {
	img := r.image
	if r.state == StateFailed || !r.image.Tensor().AllFinite() {
		img = r.good
	}
	return &Result{
		Run:        r.id,
		State:      r.state,
		Image:      imaging.FromExtractorSpace(img),
		Iterations: len(r.history),
		History:    r.history,
		Elapsed:    elapsed,
	}
}

// Transfer is NewRun, Start and Optimize in one call.
func Transfer(ctx context.Context, e *vgg.Extractor, cfg Config, content, style *imaging.RawImage, opts ...Option) (*Result, error) {
	run, err := NewRun(e, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := run.Start(content, style); err != nil {
		return nil, err
	}
	return run.Optimize(ctx)
}

// IsCanceled reports whether err came from a canceled or timed out context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
