package game

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pthm-cable/sand/config"
	"github.com/pthm-cable/sand/stream"
)

// smallConfig returns the defaults shrunk to a quick headless scene.
func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}
	cfg.Particles.Count = 300
	cfg.Particles.Extent = 0.5
	cfg.Terrain.Resolution = 16
	cfg.Telemetry.StatsWindow = 5
	cfg.Solver.Workers = 2
	return cfg
}

func newTestGame(t *testing.T, cfg *config.Config, opts Options) *Game {
	t.Helper()
	opts.Headless = true
	g, err := NewGameWithConfig(cfg, opts)
	if err != nil {
		t.Fatalf("NewGameWithConfig: %v", err)
	}
	return g
}

func TestHeadlessRun(t *testing.T) {
	g := newTestGame(t, smallConfig(t), Options{Seed: 1})
	defer g.Unload()

	// 300 rounds up to two blocks of 256
	if n := len(g.States()); n != 512 {
		t.Fatalf("particles = %d, want 512", n)
	}

	if err := g.RunHeadless(context.Background(), 10); err != nil {
		t.Fatalf("RunHeadless: %v", err)
	}
	if g.Step() != 10 {
		t.Errorf("Step() = %d, want 10", g.Step())
	}
	if math.Abs(float64(g.SimTime())-0.05) > 1e-5 {
		t.Errorf("SimTime() = %v, want 0.05", g.SimTime())
	}
	for i, s := range g.States() {
		if math.IsNaN(float64(s.Position.Len())) {
			t.Fatalf("particle %d position is NaN", i)
		}
	}
}

func TestRunHeadlessStopsOnCancel(t *testing.T) {
	g := newTestGame(t, smallConfig(t), Options{Seed: 2})
	defer g.Unload()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.RunHeadless(ctx, 0); err != context.Canceled {
		t.Errorf("RunHeadless error = %v, want context.Canceled", err)
	}
	if g.Step() != 0 {
		t.Errorf("Step() = %d after cancelled run, want 0", g.Step())
	}
}

func TestApplyControl(t *testing.T) {
	g := newTestGame(t, smallConfig(t), Options{Seed: 3})
	defer g.Unload()

	paused := true
	speed := 7
	g.applyControl(stream.Control{Paused: &paused, Speed: &speed})
	if !g.paused || g.speed != 7 {
		t.Fatalf("paused=%v speed=%d, want true 7", g.paused, g.speed)
	}

	g.UpdateHeadless()
	if g.Step() != 0 {
		t.Errorf("paused game stepped to %d", g.Step())
	}

	zero := 0
	g.applyControl(stream.Control{Speed: &zero})
	if g.speed != 7 {
		t.Errorf("speed = %d after zero request, want 7", g.speed)
	}
}

func TestReset(t *testing.T) {
	g := newTestGame(t, smallConfig(t), Options{Seed: 4})
	defer g.Unload()

	if err := g.RunHeadless(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	before := g.kinematics.Poses()[0].Rotation
	simTime := g.SimTime()

	if err := g.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if g.SimTime() != simTime {
		t.Errorf("SimTime() = %v after reset, want %v", g.SimTime(), simTime)
	}
	if n := len(g.States()); n != 512 {
		t.Errorf("particles after reset = %d, want 512", n)
	}

	// The spinning paddle turns by one step, not back to its start pose
	g.advance(g.opts.FrameTime)
	after := g.kinematics.Poses()[0].Rotation
	dot := math.Abs(float64(before.Dot(after)))
	angle := 2 * math.Acos(math.Min(dot, 1))
	step := float64(g.cfg.Objects[0].SpinRate) * float64(g.lastInfo.Dt)
	if math.Abs(angle-step) > 1e-3 {
		t.Errorf("paddle turned %v rad across reset, want %v", angle, step)
	}
}

func TestPausedRunWaitsForResume(t *testing.T) {
	g := newTestGame(t, smallConfig(t), Options{Seed: 6})
	defer g.Unload()

	controls := make(chan stream.Control, 1)
	g.controlCh = controls
	g.paused = true

	done := make(chan error, 1)
	go func() { done <- g.RunHeadless(context.Background(), 3) }()

	select {
	case err := <-done:
		t.Fatalf("paused run returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	resume := false
	controls <- stream.Control{Paused: &resume}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunHeadless: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("run did not resume")
	}
	if g.Step() != 3 {
		t.Errorf("Step() = %d, want 3", g.Step())
	}
}

func TestPausedRunStopsOnCancel(t *testing.T) {
	g := newTestGame(t, smallConfig(t), Options{Seed: 7})
	defer g.Unload()
	g.paused = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.RunHeadless(ctx, 0); err != context.DeadlineExceeded {
		t.Errorf("RunHeadless error = %v, want context.DeadlineExceeded", err)
	}
}

func TestOutputAndRestore(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig(t)

	g := newTestGame(t, cfg, Options{Seed: 5, OutputDir: dir})
	if err := g.RunHeadless(context.Background(), 10); err != nil {
		t.Fatal(err)
	}
	snap := g.saveSnapshot(nil)
	g.Unload()

	if snap == "" {
		t.Fatal("snapshot was not written")
	}
	for _, name := range []string{"config.yaml", "telemetry.csv", "perf.csv", "particles_10.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("missing %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	r := newTestGame(t, cfg, Options{Seed: 5, RestorePath: snap})
	defer r.Unload()
	if r.Step() != 10 {
		t.Errorf("restored Step() = %d, want 10", r.Step())
	}
	if err := r.RunHeadless(context.Background(), 12); err != nil {
		t.Fatal(err)
	}
	if r.Step() != 12 {
		t.Errorf("Step() after restore = %d, want 12", r.Step())
	}
}
