package stylize

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/stylize/internal/imaging"
	"github.com/born-ml/stylize/internal/parallel"
	"github.com/born-ml/stylize/internal/vgg"
)

// Frame is one image of a batch.
type Frame struct {
	Input  string
	Output string
}

// FrameResult pairs a frame with the outcome of its run.
type FrameResult struct {
	Frame
	Result *Result
}

// BatchOptions configures Batch.
type BatchOptions struct {
	// Workers bounds the number of concurrent runs. Zero means one.
	Workers int

	Logger *slog.Logger

	// Progress, if set, is called from every worker; it must be safe for
	// concurrent use.
	Progress ProgressFunc

	// Done, if set, is called after a frame's output has been written.
	// It must be safe for concurrent use.
	Done func(FrameResult)
}

// DiagnosticPath is where the last finite image of a failed run for output
// is written: out.png becomes out.failed.png.
func DiagnosticPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".failed" + ext
}

// Batch stylizes every frame with its own run, sharing only the extractor.
//
// Each output is written atomically and only when its run converged or
// exhausted its budget. A frame whose run fails numerically gets its last
// finite image written to DiagnosticPath(Output) instead, and its result is
// reported with the error. The first error cancels the remaining frames and
// is returned; the results of frames that finished are still reported.
func Batch(ctx context.Context, e *vgg.Extractor, cfg Config, style *imaging.RawImage, frames []Frame, opts BatchOptions) ([]FrameResult, error) {
	if err := cfg.Validate(e); err != nil {
		return nil, err
	}
	workers := max(opts.Workers, 1)
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Split the cores between concurrent runs.
	par := parallel.DefaultConfig()
	par.Workers = max(runtime.GOMAXPROCS(0)/workers, 1)

	results := make([]FrameResult, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			content, err := imaging.Load(f.Input)
			if err != nil {
				return err
			}
			runOpts := []Option{
				WithLogger(logger.With(slog.String("frame", f.Input))),
				WithParallel(par),
			}
			if opts.Progress != nil {
				runOpts = append(runOpts, WithProgress(opts.Progress))
			}
			res, err := Transfer(gctx, e, cfg, content, style, runOpts...)
			if err != nil {
				if res != nil && res.State == StateFailed {
					results[i] = FrameResult{Frame: f, Result: res}
					diag := DiagnosticPath(f.Output)
					if saveErr := imaging.Save(diag, res.Image); saveErr != nil {
						logger.Warn("could not write diagnostic image", slog.String("frame", f.Input), slog.Any("error", saveErr))
					} else {
						logger.Warn("wrote last finite image", slog.String("frame", f.Input), slog.String("path", diag))
					}
				}
				return err
			}
			if err := imaging.Save(f.Output, res.Image); err != nil {
				return err
			}
			results[i] = FrameResult{Frame: f, Result: res}
			if opts.Done != nil {
				opts.Done(results[i])
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	done := results[:0:0]
	for _, r := range results {
		if r.Result != nil {
			done = append(done, r)
		}
	}
	return done, err
}
