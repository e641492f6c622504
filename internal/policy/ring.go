package policy

import (
	"github.com/quantix-kvm/swapd/internal/domain"
)

// periodRing is a fixed-capacity circular buffer of swap periods. When full,
// appending overwrites the oldest entry. Entries are held in a flat array so
// memory stays bounded regardless of how many periods are recorded.
type periodRing struct {
	buf   []domain.SwapPeriod
	start int
	count int
}

func newPeriodRing(capacity int) *periodRing {
	return &periodRing{
		buf: make([]domain.SwapPeriod, capacity),
	}
}

// Len returns the number of periods currently stored.
func (r *periodRing) Len() int {
	return r.count
}

// Append adds a period as the newest entry, evicting the oldest one if the
// ring is at capacity.
func (r *periodRing) Append(p domain.SwapPeriod) {
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = p
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

// First returns the oldest period. The second return value is false when the
// ring is empty.
func (r *periodRing) First() (domain.SwapPeriod, bool) {
	if r.count == 0 {
		return domain.SwapPeriod{}, false
	}
	return r.buf[r.start], true
}

// Last returns the newest period. The second return value is false when the
// ring is empty.
func (r *periodRing) Last() (domain.SwapPeriod, bool) {
	if r.count == 0 {
		return domain.SwapPeriod{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// lastRef returns a pointer to the newest period for in-place mutation, or
// nil when the ring is empty. The pointer is invalidated by the next Append.
func (r *periodRing) lastRef() *domain.SwapPeriod {
	if r.count == 0 {
		return nil
	}
	return &r.buf[(r.start+r.count-1)%len(r.buf)]
}

// Each calls fn for every stored period from oldest to newest.
func (r *periodRing) Each(fn func(domain.SwapPeriod)) {
	for i := 0; i < r.count; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

// Snapshot returns the stored periods from oldest to newest as a fresh slice.
func (r *periodRing) Snapshot() []domain.SwapPeriod {
	out := make([]domain.SwapPeriod, 0, r.count)
	r.Each(func(p domain.SwapPeriod) {
		out = append(out, p)
	})
	return out
}
