package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/stylize/internal/errs"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// sniffLen covers every magic number filetype inspects for image types.
const sniffLen = 262

// JPEGQuality is used for .jpg/.jpeg output.
const JPEGQuality = 95

var decoders = map[string]func(io.Reader) (image.Image, error){
	"png":  png.Decode,
	"jpg":  jpeg.Decode,
	"gif":  gif.Decode,
	"bmp":  bmp.Decode,
	"tif":  tiff.Decode,
	"webp": webp.Decode,
}

// Load reads and decodes an image file.
//
// The format is detected from the file contents, not the extension.
// A missing or unreadable file is a resource error; an unrecognised or
// undecodable file is a format error.
func Load(path string) (*RawImage, error) {
	//nolint:gosec // G304: image paths are user input by design
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Resource("imaging.Load", path, err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, errs.Format("imaging.Load", path, err)
	}
	return img, nil
}

// Decode decodes an in-memory image.
func Decode(data []byte) (*RawImage, error) {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return nil, fmt.Errorf("detect type: %w", err)
	}
	if kind == filetype.Unknown {
		return nil, errors.New("unrecognized image format")
	}
	decode, ok := decoders[kind.Extension]
	if !ok {
		return nil, fmt.Errorf("unsupported image type %s", kind.MIME.Value)
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.Extension, err)
	}
	m := FromImage(img)
	if m.Width == 0 || m.Height == 0 {
		return nil, errors.New("image has no pixels")
	}
	return m, nil
}

// Encode writes img to w in the format named by ext (".png", ".jpg", ...).
func Encode(w io.Writer, ext string, img *RawImage) error {
	rgba := img.ToRGBA()
	switch strings.ToLower(ext) {
	case ".png":
		return png.Encode(w, rgba)
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, rgba, &jpeg.Options{Quality: JPEGQuality})
	case ".gif":
		return gif.Encode(w, rgba, nil)
	case ".bmp":
		return bmp.Encode(w, rgba)
	case ".tif", ".tiff":
		return tiff.Encode(w, rgba, &tiff.Options{Compression: tiff.Deflate})
	default:
		return errs.Formatf("imaging.Encode", "", "unsupported output extension %q", ext)
	}
}

// SupportedOutput reports whether Save can write files with path's extension.
func SupportedOutput(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return true
	default:
		return false
	}
}

// Save encodes img by path's extension and writes it atomically.
//
// The image is written to a temporary file in the destination directory and
// renamed into place, so an interrupted save never leaves a partial file at
// path.
func Save(path string, img *RawImage) (err error) {
	if !SupportedOutput(path) {
		return errs.Formatf("imaging.Save", path, "unsupported output extension %q", filepath.Ext(path))
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	//nolint:gosec // G304: output paths are user input by design
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errs.Resource("imaging.Save", path, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = Encode(f, filepath.Ext(path), img); err != nil {
		return errs.Format("imaging.Save", path, err)
	}
	if err = f.Sync(); err != nil {
		return errs.Resource("imaging.Save", path, err)
	}
	if err = f.Close(); err != nil {
		return errs.Resource("imaging.Save", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errs.Resource("imaging.Save", path, err)
	}
	return nil
}

// Resize scales img to width×height with Catmull-Rom interpolation.
func Resize(img *RawImage, width, height int) *RawImage {
	if img.Width == width && img.Height == height {
		return img.Clone()
	}
	src := image.NewRGBA64(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := img.At(x, y)
			src.SetRGBA64(x, y, color.RGBA64{R: to16(r), G: to16(g), B: to16(b), A: 0xFFFF})
		}
	}

	dst := image.NewRGBA64(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := NewRawImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := dst.RGBA64At(x, y)
			out.Set(x, y, float32(c.R)/257, float32(c.G)/257, float32(c.B)/257)
		}
	}
	return out
}

func to16(v float32) uint16 {
	return uint16(clip(v)*257 + 0.5)
}
