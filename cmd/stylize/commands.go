package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/imaging"
	"github.com/born-ml/stylize/internal/stylize"
	"github.com/born-ml/stylize/internal/video"
)

// logEvery is how often progress is logged at info level.
const logEvery = 50

func progressLogger(logger *slog.Logger, total int) stylize.ProgressFunc {
	return func(p stylize.Progress) {
		if p.Iteration%logEvery != 0 && p.Iteration != total {
			return
		}
		logger.Info("progress",
			slog.String("run", p.Run),
			slog.Int("iteration", p.Iteration),
			slog.Int("of", total),
			slog.Float64("loss", p.Loss.Total),
			slog.Duration("elapsed", p.Elapsed.Round(time.Millisecond)))
	}
}

func requireFlags(fs *pflag.FlagSet, names ...string) error {
	var missing []string
	for _, n := range names {
		if v, _ := fs.GetString(n); v == "" {
			missing = append(missing, "--"+n)
		}
	}
	if len(missing) > 0 {
		return errs.Configurationf("stylize", "missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func imageCommand() command {
	return command{
		name:  "image",
		model: true,
		setup: func(fs *pflag.FlagSet) {
			fs.String("content", "", "content image")
			fs.String("style", "", "style image")
			fs.String("out", "", "output image (.png, .jpg, .gif, .bmp, .tiff)")
		},
		exec: func(ctx context.Context, e *env) error {
			if err := requireFlags(e.flags, "content", "style", "out"); err != nil {
				return err
			}
			contentPath, _ := e.flags.GetString("content")
			stylePath, _ := e.flags.GetString("style")
			out, _ := e.flags.GetString("out")
			if !imaging.SupportedOutput(out) {
				return errs.Formatf("stylize image", out, "unsupported output format %q", filepath.Ext(out))
			}

			cfg, err := e.settings.Run()
			if err != nil {
				return err
			}
			extractor, err := e.settings.Extractor(e.logger)
			if err != nil {
				return err
			}
			content, err := imaging.Load(contentPath)
			if err != nil {
				return err
			}
			style, err := imaging.Load(stylePath)
			if err != nil {
				return err
			}

			res, runErr := stylize.Transfer(ctx, extractor, cfg, content, style,
				stylize.WithLogger(e.logger),
				stylize.WithProgress(progressLogger(e.logger, cfg.MaxIterations)))
			if res == nil {
				return runErr
			}
			switch {
			case res.State.Succeeded():
				if err := imaging.Save(out, res.Image); err != nil {
					return err
				}
				e.logger.Info("wrote image", slog.String("path", out), slog.String("state", res.State.String()))
			case res.State == stylize.StateFailed:
				diag := stylize.DiagnosticPath(out)
				if err := imaging.Save(diag, res.Image); err != nil {
					e.logger.Warn("could not write diagnostic image", slog.Any("error", err))
				} else {
					e.logger.Warn("wrote last finite image", slog.String("path", diag), slog.Int("iteration", res.Iterations))
				}
			}
			return runErr
		},
	}
}

func videoCommand() command {
	return command{
		name:  "video",
		model: true,
		setup: func(fs *pflag.FlagSet) {
			fs.String("video", "", "input video")
			fs.String("style", "", "style image")
			fs.String("out", "", "output video")
			fs.String("work-dir", "", "directory for frames (default: a temporary directory)")
			fs.Bool("keep-frames", false, "keep the frame directory after assembly")
		},
		exec: func(ctx context.Context, e *env) error {
			if err := requireFlags(e.flags, "video", "style", "out"); err != nil {
				return err
			}
			videoPath, _ := e.flags.GetString("video")
			stylePath, _ := e.flags.GetString("style")
			out, _ := e.flags.GetString("out")
			workDir, _ := e.flags.GetString("work-dir")
			keep, _ := e.flags.GetBool("keep-frames")

			cfg, err := e.settings.Run()
			if err != nil {
				return err
			}
			style, err := imaging.Load(stylePath)
			if err != nil {
				return err
			}
			extractor, err := e.settings.Extractor(e.logger)
			if err != nil {
				return err
			}

			if workDir == "" {
				workDir, err = os.MkdirTemp("", "stylize-*")
				if err != nil {
					return errs.Resource("stylize video", os.TempDir(), err)
				}
			}
			if !keep {
				defer func() { _ = os.RemoveAll(workDir) }()
			}

			vopts := video.Options{Logger: e.logger}
			if info, err := video.Probe(videoPath); err == nil {
				e.logger.Info("input video",
					slog.Int("width", info.Width), slog.Int("height", info.Height),
					slog.Float64("fps", info.FPS), slog.Int("frames", info.Frames))
			}
			inputs, err := video.Decompose(ctx, videoPath, filepath.Join(workDir, "frames"), vopts)
			if err != nil {
				return err
			}

			styledDir := filepath.Join(workDir, "styled")
			if err := os.MkdirAll(styledDir, 0o750); err != nil {
				return errs.Resource("stylize video", styledDir, err)
			}
			frames := make([]stylize.Frame, len(inputs))
			for i, in := range inputs {
				frames[i] = stylize.Frame{Input: in, Output: filepath.Join(styledDir, filepath.Base(in))}
			}

			started := time.Now()
			var finished atomic.Int64
			results, err := stylize.Batch(ctx, extractor, cfg, style, frames, stylize.BatchOptions{
				Workers: e.settings.Workers,
				Logger:  e.logger,
				Done: func(r stylize.FrameResult) {
					n := finished.Add(1)
					e.logger.Info("frame done",
						slog.String("frame", filepath.Base(r.Output)),
						slog.Int64("done", n),
						slog.Int("of", len(frames)),
						slog.String("state", r.Result.State.String()))
				},
			})
			if err != nil {
				return err
			}
			e.logger.Info("stylized frames", slog.Int("frames", len(results)), slog.Duration("elapsed", time.Since(started).Round(time.Second)))

			outputs := make([]string, len(results))
			for i, r := range results {
				outputs[i] = r.Output
			}
			return video.Assemble(ctx, outputs, e.settings.FPS, out, vopts)
		},
	}
}

func framesCommand() command {
	return command{
		name: "frames",
		setup: func(fs *pflag.FlagSet) {
			fs.String("video", "", "input video (split)")
			fs.String("dir", "", "frame directory")
			fs.String("out", "", "output video (join)")
		},
		exec: func(ctx context.Context, e *env) error {
			if len(e.args) != 1 {
				return errs.Configurationf("stylize frames", "want exactly one of split or join, got %v", e.args)
			}
			dir, _ := e.flags.GetString("dir")
			vopts := video.Options{Logger: e.logger}

			switch e.args[0] {
			case "split":
				if err := requireFlags(e.flags, "video", "dir"); err != nil {
					return err
				}
				videoPath, _ := e.flags.GetString("video")
				frames, err := video.Decompose(ctx, videoPath, dir, vopts)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.stdout, "%d frames written to %s\n", len(frames), dir)
				return nil
			case "join":
				if err := requireFlags(e.flags, "dir", "out"); err != nil {
					return err
				}
				out, _ := e.flags.GetString("out")
				frames, err := video.ListFrames(dir)
				if err != nil {
					return err
				}
				return video.Assemble(ctx, frames, e.settings.FPS, out, vopts)
			default:
				return errs.Configurationf("stylize frames", "unknown subcommand %q (want split or join)", e.args[0])
			}
		},
	}
}
