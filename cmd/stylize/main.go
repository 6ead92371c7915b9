// Package main provides the stylize CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/born-ml/stylize/internal/config"
	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/stylize"
)

const version = "v0.1.0-dev"

const usage = `stylize - neural style transfer

Commands:
  image     Stylize one image
  video     Stylize every frame of a video
  frames    Split a video into frames or join frames into a video
  version   Show version

Run "stylize <command> --help" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// command is one subcommand. setup declares flags, exec runs with the
// resolved settings. Commands without a model skip the config layer and
// only read fps and logging flags.
type command struct {
	name  string
	model bool
	setup func(fs *pflag.FlagSet)
	exec  func(ctx context.Context, env *env) error
}

// env is what every command receives.
type env struct {
	flags    *pflag.FlagSet
	args     []string
	settings *config.Settings
	logger   *slog.Logger
	stdout   io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	var cmd command
	switch args[0] {
	case "version", "--version":
		fmt.Fprintf(stdout, "stylize %s\n", version)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	case "image":
		cmd = imageCommand()
	case "video":
		cmd = videoCommand()
	case "frames":
		cmd = framesCommand()
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	fs := pflag.NewFlagSet("stylize "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var configFile *string
	if cmd.model {
		configFile = fs.String("config", "", "config file (yaml, json or toml)")
		config.RegisterFlags(fs)
	} else {
		d := config.Default()
		fs.Float64("fps", d.FPS, "output video frame rate")
		fs.String("log-level", d.LogLevel, "debug, info, warn or error")
		fs.String("log-format", d.LogFormat, "text or json")
	}
	cmd.setup(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	var (
		settings *config.Settings
		err      error
	)
	if cmd.model {
		settings, err = config.Load(*configFile, fs)
	} else {
		settings, err = mediaSettings(fs)
	}
	if err != nil {
		fallback := config.Default()
		reportError(fallback.Logger(stderr), err)
		return 1
	}
	logger := settings.Logger(stderr)

	e := &env{flags: fs, args: fs.Args(), settings: settings, logger: logger, stdout: stdout}
	if err := cmd.exec(ctx, e); err != nil {
		reportError(logger, err)
		return 1
	}
	return 0
}

func mediaSettings(fs *pflag.FlagSet) (*config.Settings, error) {
	s := config.Default()
	s.FPS, _ = fs.GetFloat64("fps")
	s.LogLevel, _ = fs.GetString("log-level")
	s.LogFormat, _ = fs.GetString("log-format")
	if !(s.FPS > 0) {
		return nil, errs.Configurationf("stylize", "fps must be positive, got %v", s.FPS)
	}
	return &s, nil
}

func reportError(logger *slog.Logger, err error) {
	kind := "unknown"
	if k, ok := errs.KindOf(err); ok {
		kind = k.String()
	} else if stylize.IsCanceled(err) {
		kind = "canceled"
	}
	logger.Error("command failed", slog.String("kind", kind), slog.Any("error", err))
}
