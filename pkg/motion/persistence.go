package motion

import "math"

// DefaultRequiredFrames is the number of consecutive motion frames needed
// before motion counts as sustained.
const DefaultRequiredFrames = 3

// PersistenceFilter debounces the per-frame motion signal.
// It is owned by the detection goroutine and is not safe for concurrent use.
type PersistenceFilter struct {
	required int
	count    int
}

// NewPersistenceFilter creates a filter requiring n consecutive positive
// frames. Values below 1 are treated as 1.
func NewPersistenceFilter(n int) *PersistenceFilter {
	if n < 1 {
		n = 1
	}
	return &PersistenceFilter{required: n}
}

// Step feeds one frame's motion decision and returns the sustained signal.
func (f *PersistenceFilter) Step(present bool) bool {
	if !present {
		f.count = 0
		return false
	}
	if f.count < math.MaxInt {
		f.count++
	}
	return f.count >= f.required
}

// Sustained reports the current debounced signal without advancing it.
func (f *PersistenceFilter) Sustained() bool {
	return f.count >= f.required
}

// Count returns the length of the current run of motion frames.
func (f *PersistenceFilter) Count() int {
	return f.count
}

// Required returns the configured threshold.
func (f *PersistenceFilter) Required() int {
	return f.required
}
