package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelSet_ClosesOverZero(t *testing.T) {
	ls := NewLevelSet(map[int][]float64{0: {5, 3, 3, 10}})

	levels := ls.Levels(0)
	assert.Equal(t, []float64{0, 3, 5, 10}, levels)
}

func TestLevelSet_Contains(t *testing.T) {
	ls := NewLevelSet(map[int][]float64{0: {5}})

	assert.True(t, ls.Contains(0, 0, 1e-9))
	assert.True(t, ls.Contains(0, 5, 1e-9))
	assert.False(t, ls.Contains(0, 5.01, 1e-9))
	assert.True(t, ls.Contains(0, 5.01, 0.1))
}

func TestLevelSet_WithThreshold(t *testing.T) {
	ls := NewLevelSet(map[int][]float64{0: {5}})

	extended := ls.WithThreshold(0, 7, 1e-9)
	assert.Equal(t, []float64{0, 5, 7}, extended.Levels(0))

	// original is untouched.
	assert.Equal(t, []float64{0, 5}, ls.Levels(0))

	// adding an already-present threshold is a no-op.
	same := extended.WithThreshold(0, 7, 1e-9)
	assert.Equal(t, []float64{0, 5, 7}, same.Levels(0))
}

func TestPartitions_NumPartitionsAndMembers(t *testing.T) {
	p := Partitions{0: 0, 1: 1, 2: 0, 3: 1}

	assert.Equal(t, 2, p.NumPartitions())
	assert.Equal(t, []int{0, 2}, p.Members(0))
	assert.Equal(t, []int{1, 3}, p.Members(1))
}

func TestPartitions_Empty(t *testing.T) {
	p := Partitions{}
	assert.Equal(t, 0, p.NumPartitions())
	assert.Nil(t, p.Members(0))
}
