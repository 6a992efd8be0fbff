package spline

import (
	"testing"

	assertion "github.com/stretchr/testify/assert"
)

func TestRadixSplineNarrowsSearchAndTracksTail(t *testing.T) {
	assert := assertion.New(t)

	spl := New(10, 0)
	r := NewRadixSpline(spl, 2, 1) // 1-byte keys, 4 radix buckets

	assert.NoError(r.AddPoint(0, 0))
	assert.NoError(r.AddPoint(100, 1))
	assert.NoError(r.AddPoint(200, 2))
	// Deviates sharply off the 0.01 slope established so far, forcing a
	// second knot to be committed at (200, 2) and backfilling every radix
	// bucket up to prefix 4 to point at it.
	assert.NoError(r.AddPoint(260, 20))
	assert.Equal(2, r.Len())

	// A key exactly on the first committed knot's interior segment.
	predicted, low, high := r.Find(100, 20)
	assert.Equal(uint32(1), predicted)
	assert.Equal(predicted, low)
	assert.Equal(predicted, high)

	// A key exactly at the second (newest) knot.
	predicted, _, _ = r.Find(200, 20)
	assert.Equal(uint32(2), predicted)

	// A key past the newest knot, inside the still-open corridor toward the
	// most recently added point: the radix-bounded search must still reach
	// the tail-extrapolation path, not get stuck on the stale segment.
	predicted, _, _ = r.Find(260, 20)
	assert.Equal(uint32(20), predicted)
}

func TestRadixSplineDisabledDegeneratesToPlainFind(t *testing.T) {
	assert := assertion.New(t)

	spl := New(10, 0)
	r := NewRadixSpline(spl, 0, 1)

	assert.NoError(r.AddPoint(0, 0))
	assert.NoError(r.AddPoint(10, 1))
	assert.NoError(r.AddPoint(20, 2))

	want, wantLow, wantHigh := spl.Find(15, 2)
	got, gotLow, gotHigh := r.Find(15, 2)
	assert.Equal(want, got)
	assert.Equal(wantLow, gotLow)
	assert.Equal(wantHigh, gotHigh)
}

func TestRadixSplineEmptyFallsBackToSplineFind(t *testing.T) {
	assert := assertion.New(t)

	spl := New(10, 0)
	r := NewRadixSpline(spl, 4, 1)

	predicted, low, high := r.Find(42, 99)
	assert.Equal(uint32(0), predicted)
	assert.Equal(uint32(0), low)
	assert.Equal(uint32(99), high)
}
