package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverage_ComponentWiseMean(t *testing.T) {
	got := Average([][]float32{
		{1, 0, 3},
		{3, 2, 1},
	})
	assert.Equal(t, []float32{2, 1, 2}, got)
}

func TestAverage_SkipsMismatchedDimensions(t *testing.T) {
	got := Average([][]float32{
		{2, 4},
		{1, 2, 3},
		{4, 8},
	})
	assert.Equal(t, []float32{3, 6}, got)
}

func TestAverage_EmptyInput(t *testing.T) {
	assert.Nil(t, Average(nil))
	assert.Nil(t, Average([][]float32{nil}))
}
