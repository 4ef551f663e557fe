// Package main fits the soft-sphere contact coefficients with CMA-ES so a
// grain dropped on flat ground rebounds with a target restitution.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/sand/config"
	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
)

// evalRow is one line of calibrate_log.csv.
type evalRow struct {
	Eval           int     `csv:"eval"`
	Fitness        float64 `csv:"fitness"`
	Stiffness      float64 `csv:"stiffness"`
	NormalDamping  float64 `csv:"normal_damping"`
	Restitution    float64 `csv:"restitution"`
	MaxPenetration float64 `csv:"max_penetration"`
}

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	maxEvals := flag.Int("max-evals", 0, "Maximum number of evaluations (0 = use config)")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	workers := flag.Int("workers", 1, "Compute workers per drop test")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()
	cal := baseCfg.Calibrate
	if *maxEvals == 0 {
		*maxEvals = cal.Evaluations
	}

	params := NewParamVector(baseCfg)
	evaluator := NewDropEvaluator(baseCfg, *workers)
	contactOf := func(raw []float64) solver.Contact {
		c := params.Clamp(raw)
		return solver.Contact{
			Stiffness:         float32(c[0]),
			NormalDamping:     float32(c[1]),
			TangentialDamping: float32(baseCfg.Contact.TangentialDamping),
		}
	}

	// Grain mass for the closed-form comparison
	sub, err := particle.NewSubstance(particle.LayoutSimple, float32(baseCfg.Particles.Radius),
		float32(baseCfg.Particles.Density), float32(baseCfg.Particles.Mu))
	if err != nil {
		log.Fatalf("failed to build grain: %v", err)
	}
	mass := float64(sub.TotalMass)
	sub.Release()

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}
	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation
	}

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	evalCount := 0
	bestFitness := 1e9
	var bestParams []float64
	var rows []evalRow
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(contactOf(raw))
			res := evaluator.LastResult()
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = append(bestParams[:0], raw...)
			}
			rows = append(rows, evalRow{
				Eval:           evalCount,
				Fitness:        fitness,
				Stiffness:      raw[0],
				NormalDamping:  raw[1],
				Restitution:    res.Restitution,
				MaxPenetration: res.MaxPenetration,
			})

			elapsed := time.Since(startTime)
			remaining := time.Duration(*maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			fmt.Printf("Eval %d/%d: k=%.0f c=%.2f e=%.3f (analytic %.3f) pen=%.2f fitness=%.5f | elapsed: %s, ETA: %s\n",
				evalCount, *maxEvals, raw[0], raw[1], res.Restitution,
				AnalyticRestitution(raw[0], raw[1], mass), res.MaxPenetration, fitness,
				formatDuration(elapsed), formatDuration(remaining))
			return fitness
		},
	}

	fmt.Printf("Starting CMA-ES calibration with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Target restitution %.3f at drop speed %.2f m/s, %d steps per drop\n",
		cal.TargetRestitution, cal.DropSpeed, cal.Steps)

	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		log.Printf("optimization ended: %v", err)
	}
	if bestParams == nil && result != nil {
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	if err := gocsv.MarshalFile(&rows, logFile); err != nil {
		log.Printf("failed to write evaluation log: %v", err)
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.6f\n", bestFitness)
	if bestParams == nil {
		return
	}

	fmt.Println("\nBest parameters:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.4f\n", spec.Path, bestParams[i])
	}

	bestCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to reload config: %v", err)
	}
	params.ApplyToConfig(bestCfg, bestParams)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
