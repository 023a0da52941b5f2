package session

import "time"

// micLimiter caps inbound microphone frames per second and bytes per second. Each cap is a
// token bucket holding burstSeconds worth of its rate.
type micLimiter struct {
	now    func() time.Time
	last   time.Time
	frames *bucket
	bytes  *bucket
}

type bucket struct {
	rate   float64
	tokens float64
	limit  float64
}

func newBucket(rate int64, burstSeconds int) *bucket {
	if rate <= 0 {
		return nil
	}
	limit := float64(rate) * float64(burstSeconds)
	return &bucket{rate: float64(rate), tokens: limit, limit: limit}
}

func (b *bucket) refill(elapsed time.Duration) {
	if b == nil || elapsed <= 0 {
		return
	}
	b.tokens = min(b.limit, b.tokens+elapsed.Seconds()*b.rate)
}

func (b *bucket) has(n float64) bool {
	return b == nil || b.tokens >= n
}

func (b *bucket) take(n float64) {
	if b != nil {
		b.tokens -= n
	}
}

// newMicLimiter returns nil, which allows everything, when both caps are disabled.
func newMicLimiter(now func() time.Time, fps int, bps int64, burstSeconds int) *micLimiter {
	if fps <= 0 && bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	return &micLimiter{
		now:    now,
		last:   now(),
		frames: newBucket(int64(fps), burstSeconds),
		bytes:  newBucket(bps, burstSeconds),
	}
}

func (l *micLimiter) Allow(frameBytes int) bool {
	if l == nil {
		return true
	}
	now := l.now()
	elapsed := now.Sub(l.last)
	l.last = now
	l.frames.refill(elapsed)
	l.bytes.refill(elapsed)

	n := float64(max(frameBytes, 0))
	if !l.frames.has(1) || !l.bytes.has(n) {
		return false
	}
	l.frames.take(1)
	l.bytes.take(n)
	return true
}
