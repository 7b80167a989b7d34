package access

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultTrackedPairs = 10000

// attemptLimiter counts failed attempts per (owner, file) pair. Entries
// expire FailedAttemptWindow after the last failure. Attempts still being
// checked count against the limit, so concurrent guesses cannot overrun it.
type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	seen    *expirable.LRU[string, int]
	pending map[string]int
}

func newAttemptLimiter(opts Options) *attemptLimiter {
	if opts.MaxFailedAttempts <= 0 || opts.FailedAttemptWindow <= 0 {
		return nil
	}
	size := opts.TrackedPairs
	if size <= 0 {
		size = defaultTrackedPairs
	}
	return &attemptLimiter{
		max:     opts.MaxFailedAttempts,
		seen:    expirable.NewLRU[string, int](size, nil, opts.FailedAttemptWindow),
		pending: make(map[string]int),
	}
}

// begin reserves an attempt for pair. It reports false when recorded
// failures plus attempts in flight have reached the limit. Every successful
// begin is followed by exactly one of fail, reset or release.
func (l *attemptLimiter) begin(pair string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n, _ := l.seen.Get(pair)
	if n+l.pending[pair] >= l.max {
		return false
	}
	l.pending[pair]++
	return true
}

// release ends an attempt without counting it.
func (l *attemptLimiter) release(pair string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(pair)
}

func (l *attemptLimiter) releaseLocked(pair string) {
	if l.pending[pair] <= 1 {
		delete(l.pending, pair)
		return
	}
	l.pending[pair]--
}

// fail ends an attempt and counts it as a failure.
func (l *attemptLimiter) fail(pair string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(pair)
	n, _ := l.seen.Get(pair)
	l.seen.Add(pair, n+1)
}

// reset ends a successful attempt and clears the pair's failures.
func (l *attemptLimiter) reset(pair string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked(pair)
	l.seen.Remove(pair)
}
