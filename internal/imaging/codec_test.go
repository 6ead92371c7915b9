package imaging

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *RawImage {
	img := NewRawImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, float32(x*16%256), float32(y*16%256), float32((x+y)*8%256))
		}
	}
	return img
}

func TestSaveLoad_LosslessFormats(t *testing.T) {
	dir := t.TempDir()
	img := gradient(7, 5)

	for _, ext := range []string{".png", ".bmp", ".tiff"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(dir, "out"+ext)
			require.NoError(t, Save(path, img))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, img.Width, got.Width)
			assert.Equal(t, img.Height, got.Height)
			assert.Equal(t, img.Pix, got.Pix)
		})
	}
}

func TestSaveLoad_JPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")
	img := Solid(16, 16, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	require.NoError(t, Save(path, img))

	got, err := Load(path)
	require.NoError(t, err)
	r, g, b := got.At(8, 8)
	assert.InDelta(t, 200, r, 4)
	assert.InDelta(t, 100, g, 4)
	assert.InDelta(t, 50, b, 4)
}

func TestSave_LeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, "a.png"), gradient(4, 4)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.png", entries[0].Name())
}

func TestSave_Errors(t *testing.T) {
	dir := t.TempDir()

	err := Save(filepath.Join(dir, "a.xyz"), gradient(2, 2))
	assert.ErrorIs(t, err, errs.ErrFormat)

	err = Save(filepath.Join(dir, "missing", "a.png"), gradient(2, 2))
	assert.ErrorIs(t, err, errs.ErrResource)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "failed saves must not leave files behind")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.png"))
	assert.ErrorIs(t, err, errs.ErrResource)

	text := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(text, []byte("definitely not an image"), 0o600))
	_, err = Load(text)
	assert.ErrorIs(t, err, errs.ErrFormat)

	// A valid PNG signature followed by garbage.
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(4, 4).ToRGBA()))
	truncated := filepath.Join(dir, "truncated.png")
	require.NoError(t, os.WriteFile(truncated, buf.Bytes()[:40], 0o600))
	_, err = Load(truncated)
	assert.ErrorIs(t, err, errs.ErrFormat)
}

func TestDecode_IgnoresExtension(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gradient(3, 3).ToRGBA()))

	path := filepath.Join(t.TempDir(), "image.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
}

func TestResize(t *testing.T) {
	solid := Solid(10, 6, color.RGBA{R: 40, G: 80, B: 120, A: 255})

	out := Resize(solid, 5, 12)
	assert.Equal(t, 5, out.Width)
	assert.Equal(t, 12, out.Height)
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, b := out.At(x, y)
			assert.InDelta(t, 40, r, 0.05)
			assert.InDelta(t, 80, g, 0.05)
			assert.InDelta(t, 120, b, 0.05)
		}
	}

	same := Resize(solid, 10, 6)
	assert.Equal(t, solid.Pix, same.Pix)
	same.Pix[0] = 0
	assert.NotEqual(t, float32(0), solid.Pix[0], "Resize must not alias its input")
}

func TestSupportedOutput(t *testing.T) {
	assert.True(t, SupportedOutput("a.PNG"))
	assert.True(t, SupportedOutput("dir/a.jpeg"))
	assert.False(t, SupportedOutput("a.webp"))
	assert.False(t, SupportedOutput("a"))
}
