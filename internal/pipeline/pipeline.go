// Package pipeline wires the impulse conditioner, cyclic-error filter,
// kinematics estimator, stroke state machine and metrics aggregator into
// a single owned value. There is no global singleton: the host constructs
// one Pipeline and drives it from its two cooperative contexts.
package pipeline

import (
	"ergomonitor/internal/config"
	"ergomonitor/internal/cyclicerror"
	"ergomonitor/internal/impulse"
	"ergomonitor/internal/kinematics"
	"ergomonitor/internal/metrics"
	"ergomonitor/internal/numeric"
	"ergomonitor/internal/stroke"
)

const (
	queueCapacity     = 64
	recordingBufferOf = 5 // multiplier on slot count for the cyclic filter's learning buffer
)

// Pipeline is the rowing-monitor core: OnEdge feeds it from interrupt
// context, Drain runs conditioner -> filter -> kinematics -> stroke ->
// metrics in the main task, and Snapshot/LastEvent are polled by external
// collaborators.
type Pipeline struct {
	cfg config.Settings
	// pendingCfg holds the settings most recently passed to Configure;
	// Reset applies them.
	pendingCfg config.Settings

	queue       *impulse.Queue
	conditioner *impulse.Conditioner
	filter      *cyclicerror.Filter
	estimator   *kinematics.Estimator
	machine     *stroke.Machine
	agg         *metrics.Aggregator

	totalTimeSeconds numeric.Float
	lastCleanDeltaUs numeric.Float

	// firstEdgeHostUs anchors the conditioner's cumulative (relative)
	// total time back to the host's absolute monotonic clock, so Tick can
	// compare "now" against "time of last accepted impulse" in the same
	// domain the host's timestamps live in.
	firstEdgeHostUs numeric.Float
	haveFirstEdge   bool
	haveImpulse     bool
	lastEvent       *stroke.Event
}

// New constructs a Pipeline from validated settings.
func New(cfg config.Settings) *Pipeline {
	p := &Pipeline{}
	p.configure(cfg)
	return p
}

func (p *Pipeline) configure(cfg config.Settings) {
	p.cfg = cfg
	p.pendingCfg = cfg
	p.queue = impulse.NewQueue(queueCapacity)
	p.conditioner = impulse.NewConditioner(p.queue, cfg.Sensor.EnableDebounceFilter, cfg.Sensor.RotationDebounceTimeMin)
	p.filter = cyclicerror.New(cfg.Machine.ImpulsesPerRevolution, cfg.Machine.ImpulsesPerRevolution*recordingBufferOf, 1.0)
	p.estimator = kinematics.New(kinematics.Config{
		ImpulsesPerRevolution:    cfg.Machine.ImpulsesPerRevolution,
		FlywheelInertia:          cfg.Machine.FlywheelInertia,
		SprocketRadius:           cfg.Machine.SprocketRadius,
		Concept2MagicNumber:      cfg.Machine.Concept2MagicNumber,
		WindowLength:             cfg.StrokePhase.ImpulseDataArrayLength,
		GoodnessOfFitThreshold:   cfg.DragFactor.GoodnessOfFitThreshold,
		LowerDragFactorThreshold: cfg.DragFactor.LowerDragFactorThreshold,
		UpperDragFactorThreshold: cfg.DragFactor.UpperDragFactorThreshold,
		MaxDragFactorRecoveryMs:  cfg.DragFactor.MaxDragFactorRecoveryMs,
		DragCoefficientsArrayLen: cfg.DragFactor.DragCoefficientsArrayLen,
	})
	p.machine = stroke.New(cfg.StrokePhase, p.estimator)
	p.agg = metrics.New()
	p.totalTimeSeconds = 0
	p.lastCleanDeltaUs = 0
	p.firstEdgeHostUs = 0
	p.haveFirstEdge = false
	p.haveImpulse = false
	p.lastEvent = nil
}

// Configure applies bulk reconfiguration. Per the external interface
// contract it takes effect on the next Reset boundary, not immediately,
// so an in-flight drive/recovery phase is never reconfigured mid-stroke.
func (p *Pipeline) Configure(cfg config.Settings) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.pendingCfg = cfg
	return nil
}

// Reset clears all pipeline state and applies the most recently
// configured settings.
func (p *Pipeline) Reset() {
	p.configure(p.pendingCfg)
}

// OnEdge is ISR-safe: bounded work, no allocation, non-blocking. The host
// calls this on every sensor falling edge with a monotonic microsecond
// timestamp.
func (p *Pipeline) OnEdge(timestampUs float64) {
	if !p.haveFirstEdge {
		p.haveFirstEdge = true
		p.firstEdgeHostUs = timestampUs
	}
	p.conditioner.OnEdge(timestampUs)
}

// Drain runs every impulse currently queued through the pipeline. The
// host calls this once per main-task iteration; it never blocks.
func (p *Pipeline) Drain() {
	for {
		imp, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.process(imp)
	}
}

func (p *Pipeline) process(imp impulse.Impulse) {
	p.haveImpulse = true

	n := p.cfg.Machine.ImpulsesPerRevolution
	relativePos := int(imp.RawImpulseCount % uint64(n))

	cleanDeltaUs := p.filter.Process(imp.RawImpulseCount, relativePos, numeric.Float(imp.DeltaTime))
	p.lastCleanDeltaUs = cleanDeltaUs
	p.totalTimeSeconds += cleanDeltaUs / 1_000_000.0

	state := p.estimator.Update(p.totalTimeSeconds)

	if ev := p.machine.OnImpulse(p.totalTimeSeconds, state); ev != nil {
		p.lastEvent = ev
		p.agg.OnStroke(metrics.StrokeEvent{
			DriveDuration:    ev.DriveDuration,
			RecoveryDuration: ev.RecoveryDuration,
			AvgStrokePower:   ev.AvgStrokePower,
			DragCoefficient:  ev.DragFactor,
			HandleForces:     ev.HandleForces,
			LastStrokeTime:   ev.LastStrokeTime,
		})
	}

	if relativePos == 0 {
		p.agg.OnRevolution(p.totalTimeSeconds, p.estimator.DistancePerRevolution())
	}
}

// Tick checks the stopped-state timeout against the host's monotonic
// microsecond clock. The host calls this once per main-task iteration,
// whether or not Drain found any queued impulses.
func (p *Pipeline) Tick(nowUs float64) {
	if !p.haveImpulse || p.machine.Phase() == stroke.Stopped {
		return
	}
	lastAcceptedUs := p.firstEdgeHostUs + p.conditioner.LastTotalTime()
	elapsedMs := (nowUs - lastAcceptedUs) / 1000.0
	if elapsedMs > p.cfg.Sensor.RowingStoppedThreshold {
		p.machine.ForceStop(p.totalTimeSeconds)
		p.agg.OnStopped()
	}
}

// Snapshot returns a read-only value copy of the current metrics.
func (p *Pipeline) Snapshot() metrics.RowerMetrics {
	return p.agg.Snapshot()
}

// LastEvent returns the most recently completed stroke, or nil if none
// has completed yet.
func (p *Pipeline) LastEvent() *stroke.Event {
	return p.lastEvent
}

// Phase returns the current stroke phase.
func (p *Pipeline) Phase() stroke.Phase {
	return p.machine.Phase()
}

// RevCount returns the number of completed flywheel revolutions.
func (p *Pipeline) RevCount() uint64 { return p.agg.Snapshot().RevCount }

// StrokeCount returns the number of completed strokes.
func (p *Pipeline) StrokeCount() uint64 { return p.agg.Snapshot().StrokeCount }

// LastImpulseTime returns the host-clock microsecond timestamp of the most
// recently accepted sensor edge. Safe to call from any context.
func (p *Pipeline) LastImpulseTime() float64 {
	return p.firstEdgeHostUs + p.conditioner.LastTotalTime()
}

// DeltaTime returns the corrected delta of the most recently processed
// impulse, in microseconds.
func (p *Pipeline) DeltaTime() numeric.Float { return p.lastCleanDeltaUs }

// DragFactor returns the live drag coefficient.
func (p *Pipeline) DragFactor() numeric.Float { return p.agg.Snapshot().DragCoefficient }

// Distance returns the cumulative distance in meters.
func (p *Pipeline) Distance() numeric.Float { return p.agg.Snapshot().Distance }

// DriveDuration returns the most recent stroke's drive duration in seconds.
func (p *Pipeline) DriveDuration() numeric.Float { return p.agg.Snapshot().DriveDuration }

// RecoveryDuration returns the most recent stroke's recovery duration in
// seconds.
func (p *Pipeline) RecoveryDuration() numeric.Float { return p.agg.Snapshot().RecoveryDuration }

// AvgStrokePower returns the most recent stroke's average power in watts.
func (p *Pipeline) AvgStrokePower() numeric.Float { return p.agg.Snapshot().AvgStrokePower }
