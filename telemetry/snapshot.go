package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/particle"
	"github.com/pthm-cable/sand/solver"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when loading a snapshot of another format.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// Snapshot holds the particle state of a run for inspection or restart.
type Snapshot struct {
	Version int     `json:"version"`
	Seed    int64   `json:"seed"`
	Step    uint64  `json:"step"`
	SimTime float64 `json:"sim_time"`

	Material  Material        `json:"material"`
	Particles []ParticleState `json:"particles"`
	Objects   []ObjectPose    `json:"objects,omitempty"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// Material records the substance the particles were made of.
type Material struct {
	Layout  string  `json:"layout"`
	Radius  float32 `json:"radius"`
	Density float32 `json:"density"`
	Mu      float32 `json:"mu"`
}

// ParticleState holds one particle's dynamic state.
type ParticleState struct {
	P [3]float32 `json:"p"`
	V [3]float32 `json:"v"`
	Q [4]float32 `json:"q"` // x, y, z, w
	W [3]float32 `json:"w"`
}

// ObjectPose holds one kinematic object's pose.
type ObjectPose struct {
	Name     string     `json:"name"`
	Position [3]float32 `json:"position"`
	Rotation [4]float32 `json:"rotation"` // x, y, z, w
}

// NewSnapshot captures states made of sub at the given step.
func NewSnapshot(step uint64, simTime float64, seed int64, sub *particle.Substance, states []particle.State) *Snapshot {
	s := &Snapshot{
		Version: SnapshotVersion,
		Seed:    seed,
		Step:    step,
		SimTime: simTime,
		Material: Material{
			Layout:  sub.Layout.String(),
			Radius:  sub.Radius,
			Density: sub.Density,
			Mu:      sub.Mu,
		},
		Particles: make([]ParticleState, len(states)),
	}
	for i, st := range states {
		s.Particles[i] = ParticleState{
			P: st.Position,
			V: st.Velocity,
			Q: st.Orientation,
			W: st.AngularVelocity,
		}
	}
	return s
}

// AddObject records a named object pose.
func (s *Snapshot) AddObject(name string, pose solver.Pose) {
	s.Objects = append(s.Objects, ObjectPose{
		Name:     name,
		Position: pose.Position,
		Rotation: [4]float32{pose.Rotation.V[0], pose.Rotation.V[1], pose.Rotation.V[2], pose.Rotation.W},
	})
}

// States converts the stored particles back to solver states.
func (s *Snapshot) States() []particle.State {
	out := make([]particle.State, len(s.Particles))
	for i, p := range s.Particles {
		out[i] = particle.State{
			Position:        mgl32.Vec3(p.P),
			Velocity:        mgl32.Vec3(p.V),
			Orientation:     mgl32.Vec4(p.Q),
			AngularVelocity: mgl32.Vec3(p.W),
		}
	}
	return out
}

// Substance rebuilds the stored material.
func (s *Snapshot) Substance() (*particle.Substance, error) {
	layout, err := particle.ParseLayout(s.Material.Layout)
	if err != nil {
		return nil, err
	}
	return particle.NewSubstance(layout, s.Material.Radius, s.Material.Density, s.Material.Mu)
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Step)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Step, sanitized)
	}
	path := filepath.Join(dir, name+".json")

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("load %s: version %d: %w", path, snapshot.Version, ErrSnapshotVersion)
	}

	return &snapshot, nil
}
