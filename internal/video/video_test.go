package video

import (
	"context"
	"fmt"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/born-ml/stylize/internal/imaging"
)

func TestFrameIndex(t *testing.T) {
	cases := map[string]int{
		"frame_0.png":          0,
		"frame_9.png":          9,
		"frame_10.png":         10,
		"/tmp/x/frame_123.png": 123,
	}
	for name, want := range cases {
		got, ok := FrameIndex(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	for _, name := range []string{"frame_.png", "frame_1.jpg", "frame_-1.png", "frame_a.png", "other_1.png", "frame_+3.png"} {
		_, ok := FrameIndex(name)
		assert.False(t, ok, name)
	}
	assert.Equal(t, "frame_7.png", FrameName(7))
}

func TestSortFrames_NumericNotLexicographic(t *testing.T) {
	paths := []string{"frame_10.png", "frame_9.png", "notes.txt", "frame_100.png", "frame_0.png", "frame_11.png", "frame_1.png"}
	SortFrames(paths)
	assert.Equal(t, []string{"frame_0.png", "frame_1.png", "frame_9.png", "frame_10.png", "frame_11.png", "frame_100.png", "notes.txt"}, paths)
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	order := rand.New(rand.NewSource(1)).Perm(100)
	for _, i := range order {
		require.NoError(t, os.WriteFile(filepath.Join(dir, FrameName(i)), nil, 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame_100.png"), 0o750))

	frames, err := ListFrames(dir)
	require.NoError(t, err)
	require.Len(t, frames, 100)
	for i, f := range frames {
		assert.Equal(t, filepath.Join(dir, FrameName(i)), f)
	}

	idx9 := indexOf(frames, filepath.Join(dir, "frame_9.png"))
	idx10 := indexOf(frames, filepath.Join(dir, "frame_10.png"))
	assert.Less(t, idx9, idx10)
	assert.Equal(t, filepath.Join(dir, "frame_99.png"), frames[99])

	_, err = ListFrames(filepath.Join(dir, "absent"))
	assert.ErrorIs(t, err, errs.ErrResource)
}

func TestSortFrames_AnyPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 100).Draw(t, "n")
		perm := rand.New(rand.NewSource(rapid.Int64().Draw(t, "seed"))).Perm(n)
		paths := make([]string, n)
		for i, idx := range perm {
			paths[i] = filepath.Join("frames", FrameName(idx))
		}
		SortFrames(paths)
		for i, p := range paths {
			if got, _ := FrameIndex(p); got != i {
				t.Fatalf("position %d holds %s", i, p)
			}
		}
	})
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	frames := []string{
		filepath.Join(dir, "frame_0.png"),
		filepath.Join(dir, "frame_9.png"),
		filepath.Join(dir, "frame_10.png"),
	}
	var sb strings.Builder
	require.NoError(t, WriteConcatList(&sb, frames, 4))

	want := "ffconcat version 1.0\n" +
		fmt.Sprintf("file '%s'\nduration 0.25\n", frames[0]) +
		fmt.Sprintf("file '%s'\nduration 0.25\n", frames[1]) +
		fmt.Sprintf("file '%s'\nduration 0.25\n", frames[2]) +
		fmt.Sprintf("file '%s'\n", frames[2])
	assert.Equal(t, want, sb.String())

	sb.Reset()
	require.NoError(t, WriteConcatList(&sb, []string{"/a/it's/frame_0.png"}, 1))
	assert.Contains(t, sb.String(), `file '/a/it'\''s/frame_0.png'`)
}

func TestParseProbe(t *testing.T) {
	data := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":640,"height":360,"r_frame_rate":"30000/1001","nb_frames":"42"}]}`
	info, err := parseProbe("test", "in.mp4", data)
	require.NoError(t, err)
	assert.Equal(t, 640, info.Width)
	assert.Equal(t, 360, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 1e-2)
	assert.Equal(t, 42, info.Frames)

	_, err = parseProbe("test", "in.mp3", `{"streams":[{"codec_type":"audio"}]}`)
	assert.ErrorIs(t, err, errs.ErrFormat)
	_, err = parseProbe("test", "in.mp4", `not json`)
	assert.ErrorIs(t, err, errs.ErrFormat)

	assert.Equal(t, 25.0, parseRate("25"))
	assert.Zero(t, parseRate("1/0"))
	assert.Zero(t, parseRate("x"))
}

func TestErrorsBeforeFFmpeg(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := Decompose(ctx, filepath.Join(dir, "absent.mp4"), dir, Options{})
	assert.ErrorIs(t, err, errs.ErrResource)

	err = Assemble(ctx, nil, 30, filepath.Join(dir, "out.mp4"), Options{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	err = Assemble(ctx, []string{filepath.Join(dir, "frame_0.png")}, 30, filepath.Join(dir, "out.mp4"), Options{})
	assert.ErrorIs(t, err, errs.ErrResource)

	err = Assemble(ctx, []string{"frame_0.png"}, 0, filepath.Join(dir, "out.mp4"), Options{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Probe(filepath.Join(dir, "absent.mp4"))
	assert.ErrorIs(t, err, errs.ErrResource)
}

// TestRoundTrip needs an ffmpeg binary and is skipped without one.
func TestRoundTrip(t *testing.T) {
	if !Available() {
		t.Skip("ffmpeg not on PATH")
	}
	dir := t.TempDir()
	ctx := context.Background()

	var frames []string
	for i := 0; i < 12; i++ {
		p := filepath.Join(dir, "in", FrameName(i))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		shade := uint8(i * 20)
		require.NoError(t, imaging.Save(p, imaging.Solid(32, 32, color.RGBA{R: shade, G: shade, B: shade, A: 255})))
		frames = append(frames, p)
	}
	// Hand the frames over out of order; Assemble must sort them.
	frames[3], frames[10] = frames[10], frames[3]

	out := filepath.Join(dir, "out.mp4")
	require.NoError(t, Assemble(ctx, frames, 12, out, Options{}))

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	decoded, err := Decompose(ctx, out, filepath.Join(dir, "split"), Options{})
	require.NoError(t, err)
	// The repeated last concat entry may add one frame.
	require.GreaterOrEqual(t, len(decoded), 12)
	assert.Equal(t, "frame_0.png", filepath.Base(decoded[0]))

	// Shades increase with the index, so the order survived.
	var last float32 = -1
	for _, f := range decoded {
		img, err := imaging.Load(f)
		require.NoError(t, err)
		r, _, _ := img.At(16, 16)
		assert.Greater(t, r, last-8, f)
		last = r
	}
}

func TestDecompose_Canceled(t *testing.T) {
	if !Available() {
		t.Skip("ffmpeg not on PATH")
	}
	dir := t.TempDir()
	video := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(video, []byte("not a video"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decompose(ctx, video, filepath.Join(dir, "split"), Options{})
	assert.Error(t, err)
}
