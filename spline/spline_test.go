package spline

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestSplineSingleKnotExtrapolatesAlongCorridor(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)

	// Perfectly linear (key, page) pairs: one page every 29 keys, the way
	// a fixed-size data page accumulates records. The corridor never
	// breaks, so only the first knot is ever committed.
	for page := uint32(0); page < 20; page++ {
		assert.NoError(s.Add(uint64(page)*29, page))
	}
	assert.Equal(1, s.Len())

	predicted, low, high := s.Find(500, 19)
	assert.Equal(uint32(17), predicted, "500/29 truncates to page 17")
	assert.Equal(predicted, low)
	assert.Equal(predicted, high)

	predicted, _, _ = s.Find(579, 19)
	assert.Equal(uint32(19), predicted)

	predicted, _, _ = s.Find(0, 19)
	assert.Equal(uint32(0), predicted)
}

func TestSplineSingleKnotWithNoCornerStillConstant(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)
	assert.NoError(s.Add(100, 5))

	// Only one point has ever been seen, so there is no corridor yet: the
	// sole knot's page is the only available estimate regardless of key.
	predicted, _, _ := s.Find(9999, 50)
	assert.Equal(uint32(5), predicted)
}

func TestSplineErrorBoundHoldsAcrossASlopeChange(t *testing.T) {
	assert := assertion.New(t)
	s := New(500, 0)

	// Slope 1/10 from key 0 to 30, then a sharp kink at key 40 that forces a
	// knot commit. Finalize folds the trailing point in as a real knot too,
	// so every inserted point ends up covered by an exact committed segment
	// rather than open-corridor extrapolation.
	inserted := []Knot{{0, 0}, {10, 1}, {20, 2}, {30, 3}, {40, 13}}
	for _, pt := range inserted {
		assert.NoError(s.Add(pt.Key, pt.Page))
	}
	s.Finalize()
	assert.Equal(3, s.Len())

	const maxPage = 13
	for _, pt := range inserted {
		predicted, low, high := s.Find(pt.Key, maxPage)
		assert.Equal(pt.Page, predicted, "key %d", pt.Key)
		assert.LessOrEqual(low, predicted)
		assert.GreaterOrEqual(high, predicted)
	}
}

func TestSplineMultiKnotCorridorSplitsOnDeviation(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)

	assert.NoError(s.Add(0, 0))
	assert.NoError(s.Add(10, 1)) // establishes a 1/10 corridor
	assert.NoError(s.Add(20, 2)) // still on the line, corridor holds

	assert.Equal(1, s.Len())

	// A point far off the established corridor forces a new knot to be
	// committed at the last point that was still covered.
	assert.NoError(s.Add(21, 10))
	assert.Equal(2, s.Len())
	assert.Equal(Knot{Key: 20, Page: 2}, s.Knots()[1])
}

func TestSplineRejectsNonMonotonicKeys(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)
	assert.NoError(s.Add(100, 1))
	err := s.Add(50, 2)
	assert.ErrorIs(err, ErrNonMonotonic)
}

func TestSplineOverflowLeavesPriorStateUsable(t *testing.T) {
	assert := assertion.New(t)
	s := New(2, 0)
	assert.NoError(s.Add(0, 0))
	assert.NoError(s.Add(10, 1))
	// Force a knot commit beyond capacity.
	assert.NoError(s.Add(11, 50)) // deviates sharply, commits the 2nd knot (10, 1)
	err := s.Add(12, 60)          // deviates again, wants a 3rd knot
	assert.ErrorIs(err, ErrOverflow)

	// Find still works off whatever knots were committed before overflow.
	predicted, _, _ := s.Find(0, 60)
	assert.Equal(uint32(0), predicted)
}

func TestSplineFindBoundedClampsOutOfRangeIndices(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)
	assert.NoError(s.Add(0, 0))
	assert.NoError(s.Add(10, 5))
	assert.NoError(s.Add(11, 50)) // forces a second knot

	// lo/hi wider than the knot count must be clamped, not panic.
	predicted, _, _ := s.FindBounded(10, 50, -5, 100)
	assert.Equal(uint32(5), predicted)
}

func TestSplineFinalizeCommitsTrailingPoint(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)
	assert.NoError(s.Add(0, 0))
	assert.NoError(s.Add(10, 1))
	assert.Equal(1, s.Len())

	s.Finalize()
	assert.Equal(2, s.Len())
	assert.Equal(Knot{Key: 10, Page: 1}, s.Knots()[1])

	// Finalize with no pending point beyond the last knot is a no-op.
	s.Finalize()
	assert.Equal(2, s.Len())
}

func TestSplineFindOnEmptySpline(t *testing.T) {
	assert := assertion.New(t)
	s := New(10, 0)
	predicted, low, high := s.Find(42, 99)
	assert.Equal(uint32(0), predicted)
	assert.Equal(uint32(0), low)
	assert.Equal(uint32(99), high)
}
