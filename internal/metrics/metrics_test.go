package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregator_RevCountAndDistanceMonotonic(t *testing.T) {
	a := New()
	a.OnRevolution(1.0, 2.5)
	a.OnRevolution(2.0, 2.5)
	a.OnRevolution(3.0, 0) // insufficient data, no distance increment

	snap := a.Snapshot()
	assert.Equal(t, uint64(3), snap.RevCount)
	assert.InDelta(t, 5.0, snap.Distance, 1e-9)
}

func TestAggregator_StrokeCountNeverExceedsRevCount(t *testing.T) {
	a := New()
	a.OnRevolution(1.0, 1.0)
	a.OnStroke(StrokeEvent{DriveDuration: 0.5, LastStrokeTime: 1.0})

	snap := a.Snapshot()
	assert.LessOrEqual(t, snap.StrokeCount, snap.RevCount)
}

func TestAggregator_SnapshotIsIndependentCopy(t *testing.T) {
	a := New()
	a.OnStroke(StrokeEvent{HandleForces: []float64{1, 2, 3}})
	snap := a.Snapshot()
	snap.HandleForces[0] = 999

	fresh := a.Snapshot()
	assert.Equal(t, 1.0, fresh.HandleForces[0], "mutating a snapshot must not affect the aggregator's own state")
}

func TestAggregator_StoppedClearsHandleForcesPreservesDrag(t *testing.T) {
	a := New()
	a.OnStroke(StrokeEvent{HandleForces: []float64{1, 2, 3}, DragCoefficient: 0.0001})
	a.OnStopped()

	snap := a.Snapshot()
	assert.Empty(t, snap.HandleForces)
	assert.Equal(t, 0.0001, snap.DragCoefficient)
}

func TestAggregator_Reset(t *testing.T) {
	a := New()
	a.OnRevolution(1.0, 1.0)
	a.OnStroke(StrokeEvent{HandleForces: []float64{1}})
	a.Reset()
	snap := a.Snapshot()
	assert.Equal(t, uint64(0), snap.RevCount)
	assert.Empty(t, snap.HandleForces)
}
