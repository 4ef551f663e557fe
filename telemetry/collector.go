package telemetry

import "github.com/pthm-cable/sand/solver"

// Collector accumulates step timing within windows and produces WindowStats.
type Collector struct {
	windowSteps uint64
	maxDt       float32

	// Current window tracking
	windowStartStep uint64
	steps           int
	dtSum           float64
	clamped         int

	simTime float64
}

// NewCollector creates a collector that flushes every windowSteps steps.
// maxDt is the solver's timestep bound, used to count clamped steps.
func NewCollector(windowSteps int, maxDt float32) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps: uint64(windowSteps),
		maxDt:       maxDt,
	}
}

// RecordStep records a completed solver step.
func (c *Collector) RecordStep(info solver.StepInfo) {
	if info.Dt <= 0 {
		return
	}
	c.steps++
	c.dtSum += float64(info.Dt)
	c.simTime += float64(info.Dt)
	if info.Dt >= c.maxDt {
		c.clamped++
	}
}

// ShouldFlush returns true if enough steps have passed to flush the window.
func (c *Collector) ShouldFlush(step uint64) bool {
	return step-c.windowStartStep >= c.windowSteps
}

// SimTime returns the simulated seconds since the collector was created.
func (c *Collector) SimTime() float64 { return c.simTime }

// Flush produces the timing part of a WindowStats and resets counters for
// the next window. State-derived fields are filled by the caller through
// Sample and SampleForces.
func (c *Collector) Flush(step uint64) WindowStats {
	stats := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   step,
		SimTimeSec:      c.simTime,
		ClampedSteps:    c.clamped,
	}
	if c.steps > 0 {
		stats.MeanDt = c.dtSum / float64(c.steps)
	}

	c.windowStartStep = step
	c.steps = 0
	c.dtSum = 0
	c.clamped = 0

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() uint64 {
	return c.windowSteps
}
