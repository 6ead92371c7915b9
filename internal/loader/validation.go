package loader

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// tensorSpan is the byte range a tensor occupies in the data section.
type tensorSpan struct {
	Name   string
	Offset int64
	Size   int64
}

// validateTensorOffsets checks for overlapping tensor offsets and out-of-bounds access.
func validateTensorOffsets(spans []tensorSpan, dataSize int64) error {
	if len(spans) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(spans), MaxTensorCount),
		}
	}

	sorted := make([]tensorSpan, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
			}
		}

		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
				}
			}
		}
	}

	return nil
}

// validateTensorName rejects names a weight file should never contain.
//
// Keras names carry a "/" ("block1_conv1/kernel:0"), so separators are allowed.
func validateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty tensor name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name,
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains '..'",
		}
	}
	if strings.Contains(name, "\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains null byte",
		}
	}
	return nil
}

// validateHeader checks names, element counts and offsets of every tensor.
func validateHeader(h *SafeTensorsHeader, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	spans := make([]tensorSpan, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		if err := validateTensorName(name); err != nil {
			return err
		}
		size := info.DataOffsets[1] - info.DataOffsets[0]
		if width := info.DType.Size(); width > 0 {
			elems := int64(1)
			for _, d := range info.Shape {
				if d <= 0 {
					return &ValidationError{
						Type:    "invalid_shape",
						Tensor:  name,
						Details: fmt.Sprintf("shape %v has non-positive dimension", info.Shape),
					}
				}
				elems *= int64(d)
			}
			if elems*int64(width) != size {
				return &ValidationError{
					Type:    "size_mismatch",
					Tensor:  name,
					Details: fmt.Sprintf("shape %v of %s needs %d bytes, offsets span %d", info.Shape, info.DType, elems*int64(width), size),
				}
			}
		}
		spans = append(spans, tensorSpan{Name: name, Offset: info.DataOffsets[0], Size: size})
	}

	return validateTensorOffsets(spans, dataSize)
}
