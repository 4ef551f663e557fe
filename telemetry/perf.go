package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/sand/solver"
)

// Phase names for the simulation step. The pipeline phases mirror the
// solver so a PerfCollector can be installed as its PhaseRecorder.
const (
	PhaseFieldGrid = solver.PhaseFieldGrid
	PhaseParticles = solver.PhaseParticles
	PhaseObjects   = solver.PhaseObjects
	PhaseTerrain   = solver.PhaseTerrain
	PhaseIntegrate = solver.PhaseIntegrate
	PhaseKinematic = "kinematic"
	PhaseTelemetry = "telemetry"
	PhaseStream    = "stream"
)

// phaseOrder is the logging order of the phase breakdown. Its indices key
// the per-step phase slots.
var phaseOrder = []string{
	PhaseKinematic, PhaseFieldGrid, PhaseParticles, PhaseObjects,
	PhaseTerrain, PhaseIntegrate, PhaseTelemetry, PhaseStream,
}

const numPhases = 8

var phaseSlot = func() map[string]int {
	m := make(map[string]int, len(phaseOrder))
	for i, p := range phaseOrder {
		m[p] = i
	}
	return m
}()

// Phases returns the phase names in logging order.
func Phases() []string { return phaseOrder }

// DispatchCounter reports the running number of kernel dispatches.
// compute.Device satisfies it.
type DispatchCounter interface {
	Dispatches() uint64
}

// phaseCost is what one phase spent in one step.
type phaseCost struct {
	dur        time.Duration
	dispatches uint64
	seen       bool
}

// perfSample is the cost of one step.
type perfSample struct {
	total  time.Duration
	phases [numPhases]phaseCost // indexed like phaseOrder
}

// PerfCollector times steps and their pipeline phases over a rolling
// window. With a DispatchCounter it also attributes kernel dispatches to
// phases; the field grid phase dominates because every bitonic pass is a
// dispatch.
type PerfCollector struct {
	window  []perfSample
	next    int
	filled  int
	counter DispatchCounter

	cur        perfSample
	stepStart  time.Time
	phaseStart time.Time
	phaseMark  uint64
	phase      int // slot of the running phase, -1 = none

	lastFrame     time.Time
	frameDuration time.Duration
}

// NewPerfCollector creates a collector averaging over windowSize steps
// (60 if windowSize < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{window: make([]perfSample, windowSize), phase: -1}
}

// SetDispatchCounter enables per-phase dispatch counts.
func (p *PerfCollector) SetDispatchCounter(c DispatchCounter) { p.counter = c }

func (p *PerfCollector) dispatches() uint64 {
	if p.counter == nil {
		return 0
	}
	return p.counter.Dispatches()
}

// StartStep begins timing a new simulation step.
func (p *PerfCollector) StartStep() {
	p.stepStart = time.Now()
	p.cur = perfSample{}
	p.phase = -1
}

// closePhase charges the running phase up to now.
func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase < 0 {
		return
	}
	c := &p.cur.phases[p.phase]
	c.dur += now.Sub(p.phaseStart)
	c.dispatches += p.dispatches() - p.phaseMark
	c.seen = true
}

// StartPhase ends the running phase and starts timing the named one.
// Unknown phase names are ignored.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	slot, ok := phaseSlot[phase]
	if !ok {
		p.phase = -1
		return
	}
	p.phase = slot
	p.phaseStart = now
	p.phaseMark = p.dispatches()
}

// EndStep closes the running phase and records the step.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	p.closePhase(now)
	p.phase = -1
	p.cur.total = now.Sub(p.stepStart)

	p.window[p.next] = p.cur
	p.next = (p.next + 1) % len(p.window)
	p.filled = min(p.filled+1, len(p.window))
}

// RecordFrame records frame timing for graphics mode.
func (p *PerfCollector) RecordFrame() {
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frameDuration = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// Last returns the duration of the most recent step, or zero before the
// first one.
func (p *PerfCollector) Last() time.Duration {
	if p.filled == 0 {
		return 0
	}
	return p.window[(p.next-1+len(p.window))%len(p.window)].total
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgStepDuration time.Duration
	MinStepDuration time.Duration
	MaxStepDuration time.Duration

	// Per phase, averaged over the window
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64 // of the average step

	// Kernel dispatches per step, zero without a DispatchCounter
	PhaseDispatches   map[string]float64
	DispatchesPerStep float64

	StepsPerSecond float64

	FrameDuration time.Duration
	FPS           float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		PhaseAvg:        make(map[string]time.Duration),
		PhasePct:        make(map[string]float64),
		PhaseDispatches: make(map[string]float64),
		FrameDuration:   p.frameDuration,
	}
	if p.frameDuration > 0 {
		s.FPS = float64(time.Second) / float64(p.frameDuration)
	}
	if p.filled == 0 {
		return s
	}

	var total time.Duration
	var sums [numPhases]phaseCost
	var totalDispatches uint64
	for i, smp := range p.window[:p.filled] {
		total += smp.total
		if i == 0 || smp.total < s.MinStepDuration {
			s.MinStepDuration = smp.total
		}
		s.MaxStepDuration = max(s.MaxStepDuration, smp.total)
		for k, c := range smp.phases {
			if !c.seen {
				continue
			}
			sums[k].dur += c.dur
			sums[k].dispatches += c.dispatches
			sums[k].seen = true
			totalDispatches += c.dispatches
		}
	}

	n := float64(p.filled)
	s.AvgStepDuration = total / time.Duration(p.filled)
	if s.AvgStepDuration > 0 {
		s.StepsPerSecond = float64(time.Second) / float64(s.AvgStepDuration)
	}
	s.DispatchesPerStep = float64(totalDispatches) / n
	for k, c := range sums {
		if !c.seen {
			continue
		}
		name := phaseOrder[k]
		avg := c.dur / time.Duration(p.filled)
		s.PhaseAvg[name] = avg
		s.PhaseDispatches[name] = float64(c.dispatches) / n
		if s.AvgStepDuration > 0 {
			s.PhasePct[name] = float64(avg) / float64(s.AvgStepDuration) * 100
		}
	}
	return s
}

// LogStats logs performance statistics.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_step_us", s.AvgStepDuration.Microseconds(),
		"min_step_us", s.MinStepDuration.Microseconds(),
		"max_step_us", s.MaxStepDuration.Microseconds(),
		"steps_per_sec", int(s.StepsPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	if s.DispatchesPerStep > 0 {
		attrs = append(attrs, "dispatches_per_step", s.DispatchesPerStep)
	}
	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, phase+"_pct", int(pct*10)/10.0)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStepDuration.Microseconds()),
		slog.Int64("min_step_us", s.MinStepDuration.Microseconds()),
		slog.Int64("max_step_us", s.MaxStepDuration.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
		slog.Float64("dispatches_per_step", s.DispatchesPerStep),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, phase := range phaseOrder {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd         uint64  `csv:"window_end"`
	AvgStepUS         int64   `csv:"avg_step_us"`
	MinStepUS         int64   `csv:"min_step_us"`
	MaxStepUS         int64   `csv:"max_step_us"`
	StepsPerSec       float64 `csv:"steps_per_sec"`
	FPS               float64 `csv:"fps"`
	DispatchesPerStep float64 `csv:"dispatches_per_step"`
	FieldGridDispatch float64 `csv:"field_grid_dispatches"`
	ObjectsDispatch   float64 `csv:"object_collision_dispatches"`
	KinematicPct      float64 `csv:"kinematic_pct"`
	FieldGridPct      float64 `csv:"field_grid_pct"`
	ParticlesPct      float64 `csv:"particle_collision_pct"`
	ObjectsPct        float64 `csv:"object_collision_pct"`
	TerrainPct        float64 `csv:"terrain_collision_pct"`
	IntegratePct      float64 `csv:"integrate_pct"`
	TelemetryPct      float64 `csv:"telemetry_pct"`
	StreamPct         float64 `csv:"stream_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:         windowEnd,
		AvgStepUS:         s.AvgStepDuration.Microseconds(),
		MinStepUS:         s.MinStepDuration.Microseconds(),
		MaxStepUS:         s.MaxStepDuration.Microseconds(),
		StepsPerSec:       s.StepsPerSecond,
		FPS:               s.FPS,
		DispatchesPerStep: s.DispatchesPerStep,
		FieldGridDispatch: s.PhaseDispatches[PhaseFieldGrid],
		ObjectsDispatch:   s.PhaseDispatches[PhaseObjects],
		KinematicPct:      s.PhasePct[PhaseKinematic],
		FieldGridPct:      s.PhasePct[PhaseFieldGrid],
		ParticlesPct:      s.PhasePct[PhaseParticles],
		ObjectsPct:        s.PhasePct[PhaseObjects],
		TerrainPct:        s.PhasePct[PhaseTerrain],
		IntegratePct:      s.PhasePct[PhaseIntegrate],
		TelemetryPct:      s.PhasePct[PhaseTelemetry],
		StreamPct:         s.PhasePct[PhaseStream],
	}
}
