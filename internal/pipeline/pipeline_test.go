package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ergomonitor/internal/config"
)

func TestPipeline_UniformFlywheelRevCount(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	var now float64
	// The very first falling edge only establishes the delta-time
	// baseline (there is no previous edge to measure against), so 41
	// edges yield 40 processed impulses.
	for i := 0; i < 41; i++ {
		now += 100_000 // 100ms in microseconds
		p.OnEdge(now)
	}
	p.Drain()

	snap := p.Snapshot()
	assert.Equal(t, uint64(10), snap.RevCount, "40 impulses at 4 magnets per revolution is exactly 10 revolutions")
	assert.Equal(t, uint64(0), snap.StrokeCount, "constant torque below every threshold is not a stroke")
	assert.Equal(t, uint64(10), p.RevCount())
	assert.InDelta(t, 100_000, p.DeltaTime(), 1.0)
}

func TestPipeline_RevCountAndStrokeCountMonotonic(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	var now float64
	var prevRev, prevStroke uint64
	for i := 0; i < 200; i++ {
		now += 80_000
		p.OnEdge(now)
		p.Drain()
		snap := p.Snapshot()
		require.GreaterOrEqual(t, snap.RevCount, prevRev)
		require.GreaterOrEqual(t, snap.StrokeCount, prevStroke)
		require.LessOrEqual(t, snap.StrokeCount, snap.RevCount)
		prevRev, prevStroke = snap.RevCount, snap.StrokeCount
	}
}

func TestPipeline_ResetResetResetIsIdempotent(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)
	var now float64
	for i := 0; i < 20; i++ {
		now += 100_000
		p.OnEdge(now)
	}
	p.Drain()
	p.Reset()
	snapOnce := p.Snapshot()
	p.Reset()
	snapTwice := p.Snapshot()
	assert.Equal(t, snapOnce, snapTwice)
}

func TestPipeline_StoppedTimeoutClearsHandleForces(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	var now float64
	for i := 0; i < 10; i++ {
		now += 100_000
		p.OnEdge(now)
	}
	p.Drain()

	// No further edges; advance host time past the stopped threshold.
	now += (cfg.Sensor.RowingStoppedThreshold + 1000) * 1000
	p.Tick(now)

	assert.Empty(t, p.Snapshot().HandleForces)
}

func TestPipeline_ConfigureValidatesBeforeApplying(t *testing.T) {
	cfg := config.Default()
	p := New(cfg)

	bad := cfg
	bad.Machine.FlywheelInertia = -1
	err := p.Configure(bad)
	assert.Error(t, err)
}
