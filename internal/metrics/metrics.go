// Package metrics aggregates the rolling RowerMetrics record exposed to
// external collaborators. It is the sole owner of that record; everything
// else in the pipeline only ever hands it updates or reads a snapshot.
package metrics

import "ergomonitor/internal/numeric"

// RowerMetrics is the process-wide view of rowing state. Distance and
// revCount are monotonically non-decreasing; strokeCount never exceeds
// revCount.
type RowerMetrics struct {
	Distance         numeric.Float // m
	LastRevTime      numeric.Float // s
	RevCount         uint64
	LastStrokeTime   numeric.Float // s
	StrokeCount      uint64
	DriveDuration    numeric.Float // s
	RecoveryDuration numeric.Float // s
	AvgStrokePower   numeric.Float // W
	DragCoefficient  numeric.Float
	HandleForces     []numeric.Float
}

// Aggregator owns a RowerMetrics record and mutates it in response to
// impulse and stroke-event updates from upstream pipeline stages.
type Aggregator struct {
	m RowerMetrics
}

// New creates an Aggregator with a zeroed RowerMetrics record.
func New() *Aggregator {
	return &Aggregator{}
}

// OnRevolution records a completed flywheel revolution: revCount
// increments and distance advances by distanceIncrement.
func (a *Aggregator) OnRevolution(now numeric.Float, distanceIncrement numeric.Float) {
	a.m.RevCount++
	a.m.LastRevTime = now
	if distanceIncrement > 0 {
		a.m.Distance += distanceIncrement
	}
}

// StrokeEvent is the subset of a completed stroke the aggregator needs;
// it mirrors stroke.Event without importing the stroke package, keeping
// the aggregator's dependency surface to data only.
type StrokeEvent struct {
	DriveDuration    numeric.Float
	RecoveryDuration numeric.Float
	AvgStrokePower   numeric.Float
	DragCoefficient  numeric.Float
	HandleForces     []numeric.Float
	LastStrokeTime   numeric.Float
}

// OnStroke records a completed stroke.
func (a *Aggregator) OnStroke(ev StrokeEvent) {
	a.m.StrokeCount++
	a.m.LastStrokeTime = ev.LastStrokeTime
	a.m.DriveDuration = ev.DriveDuration
	a.m.RecoveryDuration = ev.RecoveryDuration
	a.m.AvgStrokePower = ev.AvgStrokePower
	a.m.DragCoefficient = ev.DragCoefficient
	a.m.HandleForces = append([]numeric.Float(nil), ev.HandleForces...)
}

// OnStopped freezes rate-derived metrics: the handle-force vector clears,
// drag is preserved.
func (a *Aggregator) OnStopped() {
	a.m.HandleForces = nil
}

// Snapshot returns a value copy of the current metrics, including an
// owned copy of the handle-force vector, so a reader never observes a
// partial update and never shares backing storage with the aggregator.
func (a *Aggregator) Snapshot() RowerMetrics {
	cp := a.m
	cp.HandleForces = append([]numeric.Float(nil), a.m.HandleForces...)
	return cp
}

// Reset clears all metrics back to zero.
func (a *Aggregator) Reset() {
	a.m = RowerMetrics{}
}
