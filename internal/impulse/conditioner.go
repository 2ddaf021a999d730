package impulse

import (
	"math"
	"sync/atomic"
)

// Conditioner timestamps falling edges, optionally debounces them, and
// pushes accepted impulses onto a Queue for the main task to drain. The
// ISR calls OnEdge; nothing here allocates or blocks.
type Conditioner struct {
	debounceEnabled  bool
	debounceMinMs    float64
	queue            *Queue
	lastEdgeUs       float64
	lastDeltaUs      float64
	rawImpulseCount  uint64
	totalTimeUs      float64
	hasLastEdge      bool

	// lastRawImpulseCount and lastTotalTime mirror the most recently
	// accepted sample for lock-free polling by collaborators outside the
	// main task. These are the only two atomics shared across contexts.
	lastRawImpulseCount atomic.Uint64
	lastTotalTimeBits   atomic.Uint64
}

// NewConditioner creates a conditioner that debounces according to
// debounceEnabled/debounceMinMs and feeds accepted impulses into queue.
func NewConditioner(queue *Queue, debounceEnabled bool, debounceMinMs float64) *Conditioner {
	return &Conditioner{
		debounceEnabled: debounceEnabled,
		debounceMinMs:   debounceMinMs,
		queue:           queue,
	}
}

// OnEdge is ISR-safe: bounded work, no allocation, non-blocking. nowUs is a
// monotonic microsecond timestamp supplied by the host.
func (c *Conditioner) OnEdge(nowUs float64) {
	if !c.hasLastEdge {
		c.hasLastEdge = true
		c.lastEdgeUs = nowUs
		return
	}

	deltaUs := nowUs - c.lastEdgeUs
	deltaMs := deltaUs / 1000.0
	belowFloor := deltaMs < c.debounceMinMs

	if c.debounceEnabled {
		// Relative-spike rule: a genuine impulse differs from the previous
		// interval by less than its own length once steady state is
		// reached; a bounce produces a sub-floor spike on top of that.
		if c.lastDeltaUs != 0 {
			spike := deltaUs - c.lastDeltaUs
			if spike < 0 {
				spike = -spike
			}
			if spike > deltaUs && belowFloor {
				return
			}
		}
	} else if belowFloor {
		return
	}

	c.lastEdgeUs = nowUs
	c.lastDeltaUs = deltaUs
	c.rawImpulseCount++
	c.totalTimeUs += deltaUs

	c.lastRawImpulseCount.Store(c.rawImpulseCount)
	c.lastTotalTimeBits.Store(math.Float64bits(c.totalTimeUs))

	c.queue.Push(Impulse{
		RawImpulseCount: c.rawImpulseCount,
		DeltaTime:       deltaUs,
		TotalTime:       c.totalTimeUs,
	})
}

// LastRawImpulseCount is lock-free and safe to call from any context.
func (c *Conditioner) LastRawImpulseCount() uint64 {
	return c.lastRawImpulseCount.Load()
}

// LastTotalTime is lock-free and safe to call from any context.
func (c *Conditioner) LastTotalTime() float64 {
	return math.Float64frombits(c.lastTotalTimeBits.Load())
}

// Reset clears all conditioner state, as on a pipeline reset() boundary.
func (c *Conditioner) Reset() {
	c.hasLastEdge = false
	c.lastEdgeUs = 0
	c.lastDeltaUs = 0
	c.rawImpulseCount = 0
	c.totalTimeUs = 0
	c.lastRawImpulseCount.Store(0)
	c.lastTotalTimeBits.Store(0)
}
