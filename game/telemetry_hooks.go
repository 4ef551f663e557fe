package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pthm-cable/sand/stream"
	"github.com/pthm-cable/sand/telemetry"
)

// setupTelemetry creates the collectors and the optional output directory.
func (g *Game) setupTelemetry() error {
	tc := g.cfg.Telemetry
	g.collector = telemetry.NewCollector(tc.StatsWindow, g.cfg.Derived.MaxTimestep32)
	g.perfCollector = telemetry.NewPerfCollector(tc.PerfWindow)
	g.bookmarkDetector = telemetry.NewBookmarkDetector(10)
	g.perfCollector.SetDispatchCounter(g.dev)
	g.solver.SetPhaseRecorder(g.perfCollector)

	om, err := telemetry.NewOutputManager(g.opts.OutputDir)
	if err != nil {
		return err
	}
	g.outputManager = om
	if err := om.WriteConfig(g.cfg); err != nil {
		return err
	}
	if g.opts.SnapshotDir == "" && om != nil {
		g.opts.SnapshotDir = om.SnapshotDir()
	}
	return nil
}

// setupStream starts the WebSocket hub when an address is configured.
func (g *Game) setupStream() {
	addr := g.cfg.Stream.Addr
	if g.opts.StreamAddr != "" {
		addr = g.opts.StreamAddr
	}
	if addr == "" {
		return
	}

	g.hub = stream.NewHub()
	g.controlCh = g.hub.Controls()
	g.AddBridge(g.hub)

	ctx, cancel := context.WithCancel(context.Background())
	g.stopStream = cancel
	go func() {
		if err := g.hub.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("stream stopped", "addr", addr, "error", err)
		}
	}()
}

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.step) {
		return
	}

	stats := g.collector.Flush(g.step)
	stats.Objects = g.solver.Objects()
	stats.Terrain = g.terrain != nil

	fg := g.solver.Config()
	lo := fg.FieldCenter.Sub(fg.FieldSize.Mul(0.5))
	hi := fg.FieldCenter.Add(fg.FieldSize.Mul(0.5))
	stats.Sample(g.States(), g.substance, fg.Gravity, lo, hi)
	stats.SampleForces(g.solver.ParticleForces(), g.solver.ObjectForces(), g.solver.TerrainForces())

	g.lastStats = stats
	g.hasStats = true
	perfStats := g.perfCollector.Stats()

	// Log stats if enabled (console output)
	if g.opts.LogStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	// Write to CSV if output manager is enabled
	if g.outputManager != nil {
		if err := g.outputManager.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := g.outputManager.WritePerf(perfStats, stats.WindowEndStep); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}

	for _, bm := range g.bookmarkDetector.Check(stats) {
		if g.opts.LogStats {
			bm.LogBookmark()
		}
		if g.outputManager != nil {
			if err := g.outputManager.WriteBookmark(bm); err != nil {
				slog.Error("failed to write bookmark", "error", err)
			}
		}
		if g.opts.SnapshotDir != "" {
			g.saveSnapshot(&bm)
		}
	}
}

// saveSnapshot writes the current particle state, tagged with bm if set.
func (g *Game) saveSnapshot(bm *telemetry.Bookmark) string {
	snap := telemetry.NewSnapshot(g.step, float64(g.simTime), g.opts.Seed, g.substance, g.States())
	snap.Bookmark = bm
	for i, pose := range g.kinematics.Poses() {
		snap.AddObject(g.objects[i].Name, pose)
	}

	dir := g.opts.SnapshotDir
	if dir == "" {
		dir = "snapshots"
	}
	path, err := telemetry.SaveSnapshot(snap, dir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return ""
	}
	slog.Info("snapshot saved", "path", path, "step", g.step)
	return path
}
