package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1},
		{Shape{3}, 3},
		{Shape{2, 3}, 6},
		{Shape{1, 3, 4, 5}, 60},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.shape.NumElements(), "shape %v", tt.shape)
	}
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{1, 2, 3}.Validate())
	assert.NoError(t, Shape{}.Validate())
	assert.Error(t, Shape{1, 0, 3}.Validate())
	assert.Error(t, Shape{-1}.Validate())
}

func TestShapeComputeStrides(t *testing.T) {
	assert.Equal(t, []int{60, 20, 5, 1}, Shape{2, 3, 4, 5}.ComputeStrides())
	assert.Empty(t, Shape{}.ComputeStrides())
}

func TestShapeNCHW(t *testing.T) {
	n, c, h, w, err := Shape{1, 3, 8, 6}.NCHW()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 8, 6}, []int{n, c, h, w})
	assert.Equal(t, 48, Shape{1, 3, 8, 6}.Area())

	_, _, _, _, err = Shape{3, 8, 6}.NCHW()
	assert.Error(t, err)
}

func TestFromSlice(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(6), raw.At(1, 2))
	assert.Equal(t, float32(2), raw.At(0, 1))

	_, err = FromSlice([]float32{1, 2, 3}, Shape{2, 3})
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2, 3}, Shape{3})
	require.NoError(t, err)

	clone := raw.Clone()
	clone.Data()[0] = 42

	assert.Equal(t, float32(1), raw.Data()[0], "clone must not share storage")
	assert.True(t, clone.Shape().Equal(raw.Shape()))
}

func TestReshapeSharesStorage(t *testing.T) {
	raw, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{1, 2, 1, 3})
	require.NoError(t, err)

	view, err := raw.Reshape(Shape{2, 3})
	require.NoError(t, err)
	view.Set(9, 1, 0)
	assert.Equal(t, float32(9), raw.At(0, 1, 0, 0))

	_, err = raw.Reshape(Shape{4, 2})
	assert.Error(t, err)
}

func TestCopyFrom(t *testing.T) {
	dst := MustRaw(Shape{2})
	src, _ := FromSlice([]float32{3, 4}, Shape{2})
	require.NoError(t, dst.CopyFrom(src))
	assert.Equal(t, []float32{3, 4}, dst.Data())

	assert.Error(t, dst.CopyFrom(MustRaw(Shape{3})))
}

func TestScalarItem(t *testing.T) {
	s := Scalar(2.5)
	assert.Equal(t, float32(2.5), s.Item())
	assert.Equal(t, 0, len(s.Shape()))

	assert.Panics(t, func() { MustRaw(Shape{2}).Item() })
}

func TestAllFinite(t *testing.T) {
	raw, _ := FromSlice([]float32{1, -2, 0}, Shape{3})
	assert.True(t, raw.AllFinite())

	raw.Data()[1] = float32(math.NaN())
	assert.False(t, raw.AllFinite())

	raw.Data()[1] = float32(math.Inf(-1))
	assert.False(t, raw.AllFinite())
}
