package ratelimiter

import (
	"sync"
	"time"
)

// slidingBuckets trades memory for boundary accuracy: more buckets means
// less of the window ages out at once.
const slidingBuckets = 10

// SlidingWindow allows at most limit requests in any trailing window. The
// window is divided into equal buckets whose counts age out as time moves
// forward, which keeps memory constant while avoiding the double burst a
// fixed window admits around its boundary.
type SlidingWindow struct {
	mu         sync.Mutex
	limit      int
	bucketSize time.Duration
	buckets    []int
	current    int
	lastSlide  time.Time
}

// NewSlidingWindow creates a limiter that admits limit requests per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = time.Second
	}
	return &SlidingWindow{
		limit:      limit,
		bucketSize: window / slidingBuckets,
		buckets:    make([]int, slidingBuckets),
		lastSlide:  time.Now(),
	}
}

// Allow reports whether another request fits in the current window.
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.slide(time.Now())

	total := 0
	for _, c := range sw.buckets {
		total += c
	}
	if total >= sw.limit {
		return false
	}
	sw.buckets[sw.current]++
	return true
}

// slide advances the current bucket, zeroing every bucket that fell out of
// the window since the last call. lastSlide advances in whole bucket steps
// so fractional elapsed time is not lost.
func (sw *SlidingWindow) slide(now time.Time) {
	steps := int(now.Sub(sw.lastSlide) / sw.bucketSize)
	if steps <= 0 {
		return
	}
	if steps >= len(sw.buckets) {
		for i := range sw.buckets {
			sw.buckets[i] = 0
		}
	} else {
		for i := 1; i <= steps; i++ {
			sw.buckets[(sw.current+i)%len(sw.buckets)] = 0
		}
	}
	sw.current = (sw.current + steps) % len(sw.buckets)
	sw.lastSlide = sw.lastSlide.Add(time.Duration(steps) * sw.bucketSize)
}

var _ RateLimiter = (*SlidingWindow)(nil)
