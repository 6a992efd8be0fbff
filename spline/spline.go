// Package spline implements the piecewise-linear, bounded-error learned
// index used to map a time-series key to an approximate logical page id in
// O(1) amortized space, plus an optional radix-prefix accelerator over it.
//
// The algorithm is the "greedy spline corridor" construction: each knot
// commit is forced only when the incoming point can no longer be covered
// by the current segment's error cone, so the number of knots grows with
// the data's deviation from piecewise-linearity rather than with N.
package spline

import "github.com/pkg/errors"

// ErrOverflow is returned by Add once the spline's fixed knot capacity is
// exhausted. The spline's state up to that point remains valid and usable
// for Find; only further Add calls fail.
var ErrOverflow = errors.New("spline: knot capacity exhausted")

// ErrNonMonotonic is returned by Add when key is less than the key of the
// most recently added point.
var ErrNonMonotonic = errors.New("spline: keys must be non-decreasing")

// Knot is one retained (key, page) pair in the spline's piecewise-linear
// envelope.
type Knot struct {
	Key  uint64
	Page uint32
}

// Spline maintains a monotone piecewise-linear model with a guaranteed
// absolute error bound in the page-id dimension: for every point (k, y)
// passed to Add, |predict(k) - y| <= MaxError once Add returns nil.
type Spline struct {
	maxError int64
	capacity int

	knots []Knot

	haveCone  bool
	haveLast  bool
	lastPoint point
	minSlope  float64
	maxSlope  float64

	// hint is the index of the segment most recently returned by Find,
	// used to seed the next search per the "bounded linear
	// search from the last hit forward" contract.
	hint int
}

type point struct {
	x uint64
	y int64
}

// New creates an empty spline with the given fixed knot capacity and
// y-dimension error bound.
func New(capacity int, maxError uint32) *Spline {
	return &Spline{
		maxError: int64(maxError),
		capacity: capacity,
		knots:    make([]Knot, 0, capacity),
	}
}

// Len returns the number of committed knots.
func (s *Spline) Len() int { return len(s.knots) }

// Knots returns the committed knots in insertion order. Callers must not
// mutate the returned slice.
func (s *Spline) Knots() []Knot { return s.knots }

// MaxError returns the configured y-dimension error bound.
func (s *Spline) MaxError() uint32 { return uint32(s.maxError) }

// Add inserts the next point in non-decreasing key order. It commits a new
// knot only when the running corridor can no longer cover the point within
// MaxError.
func (s *Spline) Add(key uint64, page uint32) error {
	p := point{x: key, y: int64(page)}

	if s.haveLast && key < s.lastPoint.x {
		return ErrNonMonotonic
	}

	if len(s.knots) == 0 {
		if len(s.knots) >= s.capacity {
			return ErrOverflow
		}
		s.knots = append(s.knots, Knot{Key: key, Page: page})
		s.lastPoint = p
		s.haveLast = true
		s.haveCone = false
		return nil
	}

	origin := s.knots[len(s.knots)-1]

	if !s.haveCone {
		if p.x == origin.Key {
			s.lastPoint = p
			s.haveLast = true
			return nil
		}
		s.setCone(origin, p)
		s.lastPoint = p
		s.haveLast = true
		return nil
	}

	dx := float64(p.x - origin.Key)
	loY := float64(origin.Page) + s.minSlope*dx
	hiY := float64(origin.Page) + s.maxSlope*dx

	if float64(p.y)+float64(s.maxError) < loY || float64(p.y)-float64(s.maxError) > hiY {
		if len(s.knots) >= s.capacity {
			return ErrOverflow
		}
		s.knots = append(s.knots, Knot{Key: s.lastPoint.x, Page: uint32(s.lastPoint.y)})
		origin = s.knots[len(s.knots)-1]
		if p.x == origin.Key {
			s.haveCone = false
		} else {
			s.setCone(origin, p)
		}
		s.lastPoint = p
		s.haveLast = true
		return nil
	}

	newMin := (float64(p.y) - float64(s.maxError) - float64(origin.Page)) / dx
	newMax := (float64(p.y) + float64(s.maxError) - float64(origin.Page)) / dx
	if newMin > s.minSlope {
		s.minSlope = newMin
	}
	if newMax < s.maxSlope {
		s.maxSlope = newMax
	}
	s.lastPoint = p
	s.haveLast = true
	return nil
}

// AddPoint is Add under the name shared with RadixSpline, so callers that
// hold either as a plain "knot adder" can use one method name.
func (s *Spline) AddPoint(key uint64, page uint32) error { return s.Add(key, page) }

func (s *Spline) setCone(origin Knot, p point) {
	dx := float64(p.x - origin.Key)
	s.minSlope = (float64(p.y) - float64(s.maxError) - float64(origin.Page)) / dx
	s.maxSlope = (float64(p.y) + float64(s.maxError) - float64(origin.Page)) / dx
	s.haveCone = true
}

// Finalize commits the most recently seen pending point (if any) as the
// final knot, so the spline covers up to the last key ever added. The
// engine calls this once from Close, after the last Add, so a closed and
// reopened spline has a real knot at its tail rather than relying on
// corridor extrapolation for keys past the last committed knot.
func (s *Spline) Finalize() {
	if !s.haveLast {
		return
	}
	if len(s.knots) == 0 || s.knots[len(s.knots)-1].Key != s.lastPoint.x {
		if len(s.knots) < s.capacity {
			s.knots = append(s.knots, Knot{Key: s.lastPoint.x, Page: uint32(s.lastPoint.y)})
		}
	}
}

// Find predicts the logical page for key, returning the prediction and a
// [low, high] bound clamped to [0, maxPage] such that the true page is
// guaranteed to lie within the bound (absent ErrOverflow having occurred
// during construction). The search starts from the last hit segment and
// expands outward, per the bounded-linear-search contract.
func (s *Spline) Find(key uint64, maxPage uint32) (predicted, low, high uint32) {
	return s.FindBounded(key, maxPage, 0, len(s.knots)-1)
}

// FindBounded behaves like Find but confines the segment search to knot
// indices [lo, hi] (inclusive), as narrowed by a radix-prefix accelerator.
// lo/hi are clamped into range, so a caller may pass an overly wide bound
// safely.
func (s *Spline) FindBounded(key uint64, maxPage uint32, lo, hi int) (predicted, low, high uint32) {
	n := len(s.knots)
	if n == 0 {
		return 0, 0, maxPage
	}

	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if hi < lo {
		hi = lo
	}

	// Past the newest knot in range there is no second knot yet to draw a
	// secant through: extrapolate from the active error corridor instead of
	// falling back to whichever older segment's slope happens to be last.
	// This is the single-knot case (n == 1) generalized to "any time the
	// bounded search's upper knot is also the spline's last committed one".
	if (n == 1 || hi == n-1) && key >= s.knots[hi].Key {
		return s.clamp(s.extrapolateTail(s.knots[hi], key), maxPage)
	}

	idx := s.locateSegmentBounded(key, lo, hi)
	s.hint = idx

	a, b := s.knots[idx], s.knots[idx+1]
	var y float64
	if b.Key == a.Key {
		y = float64(a.Page)
	} else {
		slope := float64(int64(b.Page)-int64(a.Page)) / float64(b.Key-a.Key)
		y = float64(a.Page) + slope*float64(int64(key)-int64(a.Key))
	}
	return s.clamp(int64(y), maxPage)
}

// extrapolateTail predicts key's page for a key at or beyond origin, the
// newest knot bounding this search, with no second knot yet committed past
// it to draw a secant through. A lone newest knot does not mean the
// underlying data is flat from there on: Add keeps widening an active
// [minSlope, maxSlope] corridor against every point seen since that knot
// without committing a new one as long as the corridor still covers them,
// which is exactly what happens for a long run of evenly spaced keys.
// Ignoring that corridor and always predicting origin.Page would make every
// lookup past it miss once more than one page of data has been written
// since. When a corridor is active, predict along its midpoint slope
// instead; with no corridor yet (at most one point ever seen since origin),
// origin's own page is the only available estimate.
func (s *Spline) extrapolateTail(origin Knot, key uint64) int64 {
	if !s.haveCone {
		return int64(origin.Page)
	}
	var dx float64
	if key >= origin.Key {
		dx = float64(key - origin.Key)
	} else {
		dx = -float64(origin.Key - key)
	}
	slope := (s.minSlope + s.maxSlope) / 2
	return int64(float64(origin.Page) + slope*dx)
}

func (s *Spline) clamp(y int64, maxPage uint32) (predicted, low, high uint32) {
	lo := y - s.maxError
	hi := y + s.maxError
	if lo < 0 {
		lo = 0
	}
	if hi > int64(maxPage) {
		hi = int64(maxPage)
	}
	if y < 0 {
		y = 0
	}
	if y > int64(maxPage) {
		y = int64(maxPage)
	}
	return uint32(y), uint32(lo), uint32(hi)
}

// locateSegment returns i such that knots[i].Key <= key <= knots[i+1].Key,
// clamping to the first/last segment when key is out of range. It starts
// from the previous hit and walks outward, which is O(1) amortized for the
// time-series access pattern (queries tend to cluster near the write
// frontier) and O(n) worst case, same as the reference implementation.
func (s *Spline) locateSegment(key uint64) int {
	return s.locateSegmentBounded(key, 0, len(s.knots)-1)
}

// locateSegmentBounded is locateSegment additionally clamped to stay within
// segment-start indices [lo, hi-1], i.e. it never returns an index outside
// [lo, hi-1]. The walk still seeds from the last hint when that hint falls
// inside the bound, so a radix-narrowed search immediately following an
// unnarrowed one doesn't lose its locality benefit.
func (s *Spline) locateSegmentBounded(key uint64, lo, hi int) int {
	n := len(s.knots)
	if hi > n-2 {
		hi = n - 2
	}
	if lo < 0 {
		lo = 0
	}
	if lo > hi {
		lo = hi
	}

	i := s.hint
	if i < lo || i > hi {
		i = hi
	}

	if key < s.knots[i].Key {
		for i > lo && key < s.knots[i].Key {
			i--
		}
		return i
	}
	for i < hi && key > s.knots[i+1].Key {
		i++
	}
	return i
}
