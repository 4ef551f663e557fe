// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/sand/solver"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	Screen     ScreenConfig     `yaml:"screen"`
	Solver     SolverConfig     `yaml:"solver"`
	FieldGrid  FieldGridConfig  `yaml:"field_grid"`
	Contact    ContactConfig    `yaml:"contact"`
	Particles  ParticlesConfig  `yaml:"particles"`
	ObjectGrid ObjectGridConfig `yaml:"object_grid"`
	Objects    []ObjectConfig   `yaml:"objects"`
	Terrain    TerrainConfig    `yaml:"terrain"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Stream     StreamConfig     `yaml:"stream"`
	Viewer     ViewerConfig     `yaml:"viewer"`
	Calibrate  CalibrateConfig  `yaml:"calibrate"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a YAML [x, y, z] triple.
type Vec3 [3]float64

// Mgl converts to the simulation vector type.
func (v Vec3) Mgl() mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// ScreenConfig holds window parameters.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// SolverConfig holds pipeline parameters.
type SolverConfig struct {
	Gravity     Vec3    `yaml:"gravity"`
	MaxTimestep float64 `yaml:"max_timestep"` // Upper bound on dt, seconds
	FrameTime   float64 `yaml:"frame_time"`   // Fixed frame time in headless mode
	BlockSize   int     `yaml:"block_size"`   // Threads per workgroup
	Workers     int     `yaml:"workers"`      // Compute workers, 0 = GOMAXPROCS
}

// FieldGridConfig places the world-fixed neighbor grid.
type FieldGridConfig struct {
	Center   Vec3    `yaml:"center"`
	Size     Vec3    `yaml:"size"`
	CellSize float64 `yaml:"cell_size"`
}

// ContactConfig holds soft-sphere contact coefficients.
type ContactConfig struct {
	Stiffness         float64 `yaml:"stiffness"`
	NormalDamping     float64 `yaml:"normal_damping"`
	TangentialDamping float64 `yaml:"tangential_damping"`
}

// ParticlesConfig describes the main granular material and its seeding.
type ParticlesConfig struct {
	Count     int     `yaml:"count"`
	Layout    string  `yaml:"layout"` // simple, tetrahedron, cube
	Radius    float64 `yaml:"radius"`
	Density   float64 `yaml:"density"`
	Mu        float64 `yaml:"mu"`
	Generator string  `yaml:"generator"` // sphere, cube, point, mesh
	Center    Vec3    `yaml:"center"`
	Extent    float64 `yaml:"extent"` // Sphere radius or cube edge
	Mesh      string  `yaml:"mesh"`   // Shape for the mesh generator
	MeshSize  Vec3    `yaml:"mesh_size"`
}

// ObjectGridConfig sizes per-object grids.
type ObjectGridConfig struct {
	CellSize float64 `yaml:"cell_size"`
}

// ObjectConfig describes one kinematic collider.
type ObjectConfig struct {
	Name          string  `yaml:"name"`
	Shape         string  `yaml:"shape"` // box, sphere, plane
	Size          Vec3    `yaml:"size"`
	Position      Vec3    `yaml:"position"`
	SampleRadius  float64 `yaml:"sample_radius"`
	SampleSpacing float64 `yaml:"sample_spacing"`
	SpinAxis      Vec3    `yaml:"spin_axis"`
	SpinRate      float64 `yaml:"spin_rate"` // rad/s
	SwayAxis      Vec3    `yaml:"sway_axis"`
	SwayAmplitude float64 `yaml:"sway_amplitude"`
	SwayFrequency float64 `yaml:"sway_frequency"` // Hz
}

// TerrainConfig describes the optional height field.
type TerrainConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Kind       string  `yaml:"kind"` // noise, flat
	Resolution int     `yaml:"resolution"`
	Size       Vec3    `yaml:"size"`
	Origin     Vec3    `yaml:"origin"`
	Height     float64 `yaml:"height"` // Flat terrain height
	Friction   float64 `yaml:"friction"`
	Seed       int64   `yaml:"seed"`
	Scale      float64 `yaml:"scale"`
	Octaves    int     `yaml:"octaves"`
	Lacunarity float64 `yaml:"lacunarity"`
	Gain       float64 `yaml:"gain"`
	Amplitude  float64 `yaml:"amplitude"`
}

// TelemetryConfig holds statistics output parameters.
type TelemetryConfig struct {
	StatsWindow int `yaml:"stats_window"` // Steps per stats window
	PerfWindow  int `yaml:"perf_window"`  // Steps in the rolling perf window
}

// StreamConfig holds the WebSocket bridge parameters.
type StreamConfig struct {
	Addr  string `yaml:"addr"`  // Listen address, empty disables streaming
	Every int    `yaml:"every"` // Steps between published frames
}

// ViewerConfig holds windowed viewer parameters.
type ViewerConfig struct {
	ColorMode      string  `yaml:"color_mode"` // sand, velocity
	MaxSpeedColor  float64 `yaml:"max_speed_color"`
	CameraDistance float64 `yaml:"camera_distance"`
	CameraPitch    float64 `yaml:"camera_pitch"`
	StepsPerFrame  int     `yaml:"steps_per_frame"`
}

// CalibrateConfig holds the contact calibration experiment.
type CalibrateConfig struct {
	TargetRestitution float64 `yaml:"target_restitution"`
	DropSpeed         float64 `yaml:"drop_speed"`
	Steps             int     `yaml:"steps"`
	Evaluations       int     `yaml:"evaluations"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Gravity        mgl32.Vec3
	MaxTimestep32  float32
	FrameTime32    float32
	FieldCenter    mgl32.Vec3
	FieldSize      mgl32.Vec3
	FieldRes       [3]int // Cells per axis
	TerrainOrigin  mgl32.Vec3
	TerrainSize    mgl32.Vec3
	ParticleCenter mgl32.Vec3
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from path (or defaults only if empty) and sets it
// as the global configuration.
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only fields present in the file are overwritten
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Gravity = c.Solver.Gravity.Mgl()
	c.Derived.MaxTimestep32 = float32(c.Solver.MaxTimestep)
	c.Derived.FrameTime32 = float32(c.Solver.FrameTime)
	c.Derived.FieldCenter = c.FieldGrid.Center.Mgl()
	c.Derived.FieldSize = c.FieldGrid.Size.Mgl()
	for i := 0; i < 3; i++ {
		c.Derived.FieldRes[i] = max(1, int(c.FieldGrid.Size[i]/c.FieldGrid.CellSize+0.999999))
	}
	c.Derived.TerrainOrigin = c.Terrain.Origin.Mgl()
	c.Derived.TerrainSize = c.Terrain.Size.Mgl()
	c.Derived.ParticleCenter = c.Particles.Center.Mgl()

	for i := range c.Objects {
		o := &c.Objects[i]
		if o.Name == "" {
			o.Name = fmt.Sprintf("object%d", i)
		}
		if o.SampleRadius == 0 {
			o.SampleRadius = 0.1
		}
		if o.SampleSpacing == 0 {
			o.SampleSpacing = o.SampleRadius
		}
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// Validate rejects configurations the simulation cannot start with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Solver.MaxTimestep > 0, "solver.max_timestep must be positive")
	check(c.Solver.BlockSize > 0, "solver.block_size must be positive")
	check(c.FieldGrid.CellSize > 0, "field_grid.cell_size must be positive")
	check(c.ObjectGrid.CellSize > 0, "object_grid.cell_size must be positive")
	check(c.Particles.Count > 0, "particles.count must be positive")
	check(c.Particles.Radius > 0 && c.Particles.Density > 0, "particles.radius and density must be positive")
	check(oneOf(c.Particles.Layout, "simple", "tetrahedron", "cube"), "particles.layout %q unknown", c.Particles.Layout)
	check(oneOf(c.Particles.Generator, "sphere", "cube", "point", "mesh"), "particles.generator %q unknown", c.Particles.Generator)
	for _, o := range c.Objects {
		check(oneOf(o.Shape, "box", "cube", "sphere", "plane"), "objects[%s].shape %q unknown", o.Name, o.Shape)
	}
	if c.Terrain.Enabled {
		check(oneOf(c.Terrain.Kind, "noise", "flat"), "terrain.kind %q unknown", c.Terrain.Kind)
		check(c.Terrain.Resolution >= 2, "terrain.resolution must be at least 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Pipeline maps the loaded configuration onto solver settings.
func (c *Config) Pipeline() solver.Config {
	return solver.Config{
		Gravity:         c.Derived.Gravity,
		MaxTimestep:     c.Derived.MaxTimestep32,
		BlockSize:       c.Solver.BlockSize,
		FieldCenter:     c.Derived.FieldCenter,
		FieldSize:       c.Derived.FieldSize,
		FieldCellSize:   float32(c.FieldGrid.CellSize),
		ObjectCellSize:  float32(c.ObjectGrid.CellSize),
		TerrainFriction: float32(c.Terrain.Friction),
		Contact: solver.Contact{
			Stiffness:         float32(c.Contact.Stiffness),
			NormalDamping:     float32(c.Contact.NormalDamping),
			TangentialDamping: float32(c.Contact.TangentialDamping),
		},
	}
}
