package video

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	ffmpeggo "github.com/u2takey/ffmpeg-go"

	"github.com/born-ml/stylize/internal/errs"
)

// Options configures the ffmpeg calls.
type Options struct {
	// Logger receives the ffmpeg command lines. Nil discards.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Available reports whether an ffmpeg binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func requireFFmpeg(op string) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return errs.Resource(op, "ffmpeg", err)
	}
	return nil
}

// Decompose writes every frame of videoPath to outDir as frame_<n>.png,
// starting at 0, and returns the frame paths in order.
//
// Frames are passed through without duplication or dropping.
func Decompose(ctx context.Context, videoPath, outDir string, opts Options) ([]string, error) {
	const op = "video.Decompose"
	if _, err := os.Stat(videoPath); err != nil {
		return nil, errs.Resource(op, videoPath, err)
	}
	if err := requireFFmpeg(op); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, errs.Resource(op, outDir, err)
	}

	stream := ffmpeggo.Input(videoPath).
		Output(filepath.Join(outDir, FramePattern), ffmpeggo.KwArgs{
			"start_number": 0,
			"fps_mode":     "passthrough",
		}).
		OverWriteOutput()
	if err := run(ctx, stream, opts.logger()); err != nil {
		return nil, classifyRun(ctx, op, videoPath, err)
	}

	frames, err := ListFrames(outDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, errs.Formatf(op, videoPath, "no frames decoded")
	}
	opts.logger().Info("decomposed video", slog.String("video", videoPath), slog.Int("frames", len(frames)))
	return frames, nil
}

// Assemble encodes frames, in index order, into out at fps frames per
// second with the mpeg4 codec. The video is written to a temporary file
// next to out and renamed into place.
func Assemble(ctx context.Context, frames []string, fps float64, out string, opts Options) (err error) {
	const op = "video.Assemble"
	if len(frames) == 0 {
		return errs.Configurationf(op, "no frames to assemble")
	}
	if fps <= 0 {
		return errs.Configurationf(op, "fps must be positive, got %v", fps)
	}
	for _, f := range frames {
		if _, serr := os.Stat(f); serr != nil {
			return errs.Resource(op, f, serr)
		}
	}
	if err := requireFFmpeg(op); err != nil {
		return err
	}

	ordered := append([]string(nil), frames...)
	SortFrames(ordered)

	dir := filepath.Dir(out)
	list, err := os.CreateTemp(dir, ".frames-*.txt")
	if err != nil {
		return errs.Resource(op, out, err)
	}
	defer func() { _ = os.Remove(list.Name()) }()
	if err := WriteConcatList(list, ordered, fps); err != nil {
		_ = list.Close()
		return errs.Resource(op, list.Name(), err)
	}
	if err := list.Close(); err != nil {
		return errs.Resource(op, list.Name(), err)
	}

	tmp := filepath.Join(dir, "."+uuid.NewString()+filepath.Ext(out))
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	stream := ffmpeggo.Input(list.Name(), ffmpeggo.KwArgs{"f": "concat", "safe": 0}).
		Output(tmp, ffmpeggo.KwArgs{
			"c:v":     "mpeg4",
			"q:v":     2,
			"r":       strconv.FormatFloat(fps, 'f', -1, 64),
			"pix_fmt": "yuv420p",
		}).
		OverWriteOutput()
	if err := run(ctx, stream, opts.logger()); err != nil {
		return classifyRun(ctx, op, out, err)
	}
	if err := os.Rename(tmp, out); err != nil {
		return errs.Resource(op, out, err)
	}
	opts.logger().Info("assembled video", slog.String("video", out), slog.Int("frames", len(ordered)), slog.Float64("fps", fps))
	return nil
}

// WriteConcatList writes an ffmpeg concat demuxer script showing each
// frame for 1/fps seconds. The last frame is repeated so its duration is
// honoured.
func WriteConcatList(w io.Writer, frames []string, fps float64) error {
	bw := bufio.NewWriter(w)
	duration := strconv.FormatFloat(1/fps, 'f', -1, 64)
	fmt.Fprintln(bw, "ffconcat version 1.0")
	for _, f := range frames {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "file '%s'\nduration %s\n", quote(abs), duration)
	}
	if len(frames) > 0 {
		abs, err := filepath.Abs(frames[len(frames)-1])
		if err != nil {
			return err
		}
		fmt.Fprintf(bw, "file '%s'\n", quote(abs))
	}
	return bw.Flush()
}

// quote escapes single quotes for the concat demuxer.
func quote(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// Info describes the first video stream of a file.
type Info struct {
	Width, Height int
	FPS           float64
	Frames        int // 0 when the container does not say
}

// Probe reads stream metadata with ffprobe.
func Probe(path string) (*Info, error) {
	const op = "video.Probe"
	if _, err := os.Stat(path); err != nil {
		return nil, errs.Resource(op, path, err)
	}
	data, err := ffmpeggo.Probe(path)
	if err != nil {
		return nil, errs.Format(op, path, err)
	}
	return parseProbe(op, path, data)
}

func parseProbe(op, path, data string) (*Info, error) {
	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
			NbFrames   string `json:"nb_frames"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return nil, errs.Format(op, path, err)
	}
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := &Info{Width: s.Width, Height: s.Height, FPS: parseRate(s.RFrameRate)}
		info.Frames, _ = strconv.Atoi(s.NbFrames)
		return info, nil
	}
	return nil, errs.Formatf(op, path, "no video stream")
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(r string) float64 {
	num, den, found := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// run executes stream, killing ffmpeg when ctx is done.
func run(ctx context.Context, stream *ffmpeggo.Stream, logger *slog.Logger) error {
	var stderr bytes.Buffer
	cmd := stream.WithErrorOutput(&stderr).Compile()
	logger.Debug("running ffmpeg", slog.String("cmd", strings.Join(cmd.Args, " ")))

	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %s", err, lastLine(stderr.String()))
		}
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func classifyRun(ctx context.Context, op, path string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errs.Format(op, path, err)
}
