// Package imaging converts between image files and the tensors the feature
// extractor consumes.
//
// Two representations are kept apart by type:
//   - RawImage: H×W×3 float32 pixels, RGB order, values in [0, 255]
//   - Normalized: a [1, 3, H, W] tensor, BGR order, mean-centred
//
// ToExtractorSpace and FromExtractorSpace are exact inverses up to the final
// clip to [0, 255].
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/born-ml/stylize/internal/tensor"
)

// Per-channel ImageNet means subtracted before feature extraction.
const (
	MeanRed   = 123.68
	MeanGreen = 116.779
	MeanBlue  = 103.939
)

// RawImage holds interleaved RGB pixels in [0, 255], row-major.
type RawImage struct {
	Width  int
	Height int
	Pix    []float32 // len = Width*Height*3
}

// NewRawImage allocates a black image.
func NewRawImage(width, height int) *RawImage {
	return &RawImage{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height*3),
	}
}

// At returns the RGB values of pixel (x, y).
func (m *RawImage) At(x, y int) (r, g, b float32) {
	i := (y*m.Width + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// Set assigns pixel (x, y).
func (m *RawImage) Set(x, y int, r, g, b float32) {
	i := (y*m.Width + x) * 3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

// Clone returns a deep copy.
func (m *RawImage) Clone() *RawImage {
	c := NewRawImage(m.Width, m.Height)
	copy(c.Pix, m.Pix)
	return c
}

// FromImage converts any decoded image to a RawImage. Alpha is dropped.
func FromImage(src image.Image) *RawImage {
	b := src.Bounds()
	m := NewRawImage(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			m.Set(x, y, float32(c.R), float32(c.G), float32(c.B))
		}
	}
	return m
}

// ToRGBA rounds to 8-bit, clamping to [0, 255].
func (m *RawImage) ToRGBA() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			r, g, b := m.At(x, y)
			dst.SetRGBA(x, y, color.RGBA{R: to8(r), G: to8(g), B: to8(b), A: 255})
		}
	}
	return dst
}

func to8(v float32) uint8 {
	v = clip(v) + 0.5
	return uint8(v)
}

func clip(v float32) float32 {
	switch {
	case v < 0 || math.IsNaN(float64(v)):
		return 0
	case v > 255:
		return 255
	default:
		return v
	}
}

// Normalized is an image in extractor space: [1, 3, H, W], BGR, mean-centred.
type Normalized struct {
	t *tensor.RawTensor
}

// NewNormalized wraps a [1, 3, H, W] tensor.
func NewNormalized(t *tensor.RawTensor) (*Normalized, error) {
	n, c, _, _, err := t.Shape().NCHW()
	if err != nil {
		return nil, err
	}
	if n != 1 || c != 3 {
		return nil, fmt.Errorf("normalized image must be [1 3 H W], got %v", t.Shape())
	}
	return &Normalized{t: t}, nil
}

// Tensor returns the underlying tensor. The optimizer updates it in place.
func (n *Normalized) Tensor() *tensor.RawTensor {
	return n.t
}

// Width returns the image width.
func (n *Normalized) Width() int {
	return n.t.Shape()[3]
}

// Height returns the image height.
func (n *Normalized) Height() int {
	return n.t.Shape()[2]
}

// Clone returns a deep copy.
func (n *Normalized) Clone() *Normalized {
	return &Normalized{t: n.t.Clone()}
}

// ToExtractorSpace converts RGB [0, 255] pixels to the extractor's input:
// channels reordered to BGR, per-channel means subtracted, HWC to NCHW.
func ToExtractorSpace(m *RawImage) *Normalized {
	t := tensor.MustRaw(tensor.Shape{1, 3, m.Height, m.Width})
	data := t.Data()
	plane := m.Width * m.Height
	for i := 0; i < plane; i++ {
		r, g, b := m.Pix[i*3], m.Pix[i*3+1], m.Pix[i*3+2]
		data[i] = b - MeanBlue
		data[plane+i] = g - MeanGreen
		data[2*plane+i] = r - MeanRed
	}
	return &Normalized{t: t}
}

// FromExtractorSpace inverts ToExtractorSpace and clips to [0, 255].
func FromExtractorSpace(n *Normalized) *RawImage {
	h, w := n.Height(), n.Width()
	m := NewRawImage(w, h)
	data := n.t.Data()
	plane := w * h
	for i := 0; i < plane; i++ {
		m.Pix[i*3] = clip(data[2*plane+i] + MeanRed)
		m.Pix[i*3+1] = clip(data[plane+i] + MeanGreen)
		m.Pix[i*3+2] = clip(data[i] + MeanBlue)
	}
	return m
}

// Solid returns a single-colour image.
func Solid(width, height int, c color.RGBA) *RawImage {
	m := NewRawImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			m.Set(x, y, float32(c.R), float32(c.G), float32(c.B))
		}
	}
	return m
}

// Checkerboard returns alternating cell×cell squares of a and b.
func Checkerboard(width, height, cell int, a, b color.RGBA) *RawImage {
	if cell <= 0 {
		cell = 1
	}
	m := NewRawImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			m.Set(x, y, float32(c.R), float32(c.G), float32(c.B))
		}
	}
	return m
}
