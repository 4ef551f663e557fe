package ui

import (
	"fmt"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/sand/telemetry"
)

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Title     string
	Step      uint64
	SimTime   float32
	Dt        float32
	Particles int
	Objects   int
	Terrain   bool
	Speed     int
	FPS       int32
	Paused    bool
}

// HUD renders the main heads-up display.
type HUD struct {
	renderer *Renderer
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{
		renderer: NewRenderer(),
	}
}

// Draw renders the HUD.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(data.Title, 10, 10, 20, rl.White)

	terrain := "off"
	if data.Terrain {
		terrain = "on"
	}
	rl.DrawText(
		fmt.Sprintf("Particles: %d | Objects: %d | Terrain: %s", data.Particles, data.Objects, terrain),
		10, 35, 16, rl.LightGray,
	)
	rl.DrawText(
		fmt.Sprintf("Step: %d | t=%.2fs | dt=%.4f | Speed: %dx | FPS: %d", data.Step, data.SimTime, data.Dt, data.Speed, data.FPS),
		10, 55, 16, rl.LightGray,
	)

	statusText := "Running"
	if data.Paused {
		statusText = "PAUSED"
	}
	rl.DrawText(statusText, 10, 75, 16, rl.Yellow)
}

// DrawControls renders the control legend at the bottom of the screen.
func (h *HUD) DrawControls(screenHeight int32, controls string) {
	rl.DrawText(controls, 10, screenHeight-25, 14, rl.Gray)
}

// PerfPanel renders the step phase breakdown.
type PerfPanel struct {
	renderer *Renderer
	x, y     int32
}

// NewPerfPanel creates a new performance panel.
func NewPerfPanel(x, y int32) *PerfPanel {
	return &PerfPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
	}
}

// SetPosition updates the panel position.
func (p *PerfPanel) SetPosition(x, y int32) {
	p.x = x
	p.y = y
}

// Draw renders the performance panel.
func (p *PerfPanel) Draw(stats telemetry.PerfStats) {
	x := p.x
	y := p.y

	rl.DrawText("Step Phases", x, y, 16, rl.White)
	y += 20

	rl.DrawText(fmt.Sprintf("Step: %s  (%.0f/s)  %.0f kernels",
		stats.AvgStepDuration.Round(time.Microsecond), stats.StepsPerSecond, stats.DispatchesPerStep), x, y, 14, rl.Yellow)
	y += 16

	for _, name := range telemetry.Phases() {
		avg, ok := stats.PhaseAvg[name]
		if !ok {
			continue
		}
		pct := stats.PhasePct[name]

		color := rl.LightGray
		if pct > 40 {
			color = rl.Red
		} else if pct > 20 {
			color = rl.Orange
		}
		rl.DrawText(
			fmt.Sprintf("%-12s %8s %5.1f%% %4.0f", name, avg.Round(time.Microsecond), pct, stats.PhaseDispatches[name]),
			x, y, 12, color,
		)
		y += 14
	}
}

// StatsPanel renders the latest telemetry window.
type StatsPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
}

// NewStatsPanel creates a new stats panel.
func NewStatsPanel(x, y, width int32) *StatsPanel {
	return &StatsPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
	}
}

// SetPosition updates the panel position.
func (s *StatsPanel) SetPosition(x, y int32) {
	s.x = x
	s.y = y
}

// Draw renders the stats panel. maxSpeed scales the speed bars.
func (s *StatsPanel) Draw(ws telemetry.WindowStats, maxSpeed float32) int32 {
	r := s.renderer
	padding := r.Theme.Padding
	inner := s.width - padding*2

	r.DrawPanel(s.x, s.y, s.width, r.Theme.LineHeight*11+padding*2)

	x := s.x + padding
	y := s.y + padding
	y = r.DrawSectionHeader(x, y, fmt.Sprintf("Window @ %d", ws.WindowEndStep))

	y = r.DrawBar(x, y, "Speed p50", float32(ws.SpeedP50), maxSpeed, inner)
	y = r.DrawBar(x, y, "Speed p90", float32(ws.SpeedP90), maxSpeed, inner)
	y = r.DrawBar(x, y, "Speed max", float32(ws.SpeedMax), maxSpeed, inner)

	y = r.DrawLabelValue(x, y, "Kinetic", fmt.Sprintf("%.3g J", ws.KineticEnergy))
	y = r.DrawLabelValue(x, y, "Rotational", fmt.Sprintf("%.3g J", ws.RotationalEnergy))
	y = r.DrawLabelValue(x, y, "Height", fmt.Sprintf("%.2f [%.2f, %.2f]", ws.HeightMean, ws.HeightMin, ws.HeightMax))
	y = r.DrawLabelValue(x, y, "Escaped", fmt.Sprintf("%d", ws.Escaped))
	y = r.DrawLabelValue(x, y, "Clamped dt", fmt.Sprintf("%d", ws.ClampedSteps))
	return y
}
