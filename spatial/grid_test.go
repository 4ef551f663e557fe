package spatial

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sand/compute"
	"github.com/pthm-cable/sand/particle"
)

func randomPoints(rng *rand.Rand, n int, extent float32, origin mgl32.Vec3) []particle.State {
	pts := make([]particle.State, n)
	for i := range pts {
		p := mgl32.Vec3{rng.Float32() * extent, rng.Float32() * extent, rng.Float32() * extent}
		pts[i] = particle.State{Position: origin.Add(p), Orientation: particle.IdentityOrientation}
	}
	return pts
}

func TestBuildPartitionsSortedPoints(t *testing.T) {
	dev := compute.NewDevice(4)
	defer dev.Close()

	rng := rand.New(rand.NewSource(3))
	params := Params{CellSize: 0.5, Resolution: [3]int{8, 6, 8}}

	for _, n := range []int{1, 7, 256, 1000, 4096} {
		// Some points fall outside the grid and clamp to the border.
		in := randomPoints(rng, n, 5, mgl32.Vec3{-0.5, -0.5, -0.5})
		points := compute.NewPingPong("pts", in)
		grid, err := NewGrid(dev, "test", n, params)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}

		grid.Build(points, mgl32.Ident4())

		sorted := points.Live().GetData()
		ranges := grid.CellRanges()
		covered := make([]int, n)
		for hash, r := range ranges {
			for i := r.Start; i < r.End; i++ {
				covered[i]++
				c := CellCoord(sorted[i].Position, mgl32.Ident4(), params.CellSize, params.Resolution)
				if got := Hash(c, params.Resolution); got != uint32(hash) {
					t.Fatalf("n=%d: point %d with hash %d in range of cell %d", n, i, got, hash)
				}
			}
		}
		for i, c := range covered {
			if c != 1 {
				t.Fatalf("n=%d: sorted index %d covered %d times", n, i, c)
			}
		}

		// The rearranged buffer is a permutation of the input.
		entries := grid.Entries()
		seen := make([]bool, n)
		for i, e := range entries {
			if seen[e.Value] {
				t.Fatalf("n=%d: index %d duplicated", n, e.Value)
			}
			seen[e.Value] = true
			if sorted[i].Position != in[e.Value].Position {
				t.Fatalf("n=%d: sorted[%d] does not match input %d", n, i, e.Value)
			}
		}

		grid.Release()
		points.Release()
	}
}

func TestEmptyCellsHoldSentinel(t *testing.T) {
	dev := compute.NewDevice(1)
	params := Params{CellSize: 1, Resolution: [3]int{4, 4, 4}}
	in := []particle.State{{Position: mgl32.Vec3{0.5, 0.5, 0.5}}, {Position: mgl32.Vec3{3.5, 3.5, 3.5}}}
	points := compute.NewPingPong("pts", in)
	grid, err := NewGrid(dev, "test", len(in), params)
	if err != nil {
		t.Fatal(err)
	}

	// A second build must not see ranges left by the first.
	grid.Build(points, mgl32.Ident4())
	points.Live().Data()[0].Position = mgl32.Vec3{1.5, 0.5, 0.5}
	grid.Build(points, mgl32.Ident4())

	nonEmpty := 0
	for _, r := range grid.CellRanges() {
		if !r.Empty() {
			nonEmpty++
		} else if r != (CellRange{}) {
			t.Errorf("empty cell holds %v", r)
		}
	}
	if nonEmpty != 2 {
		t.Errorf("expected 2 occupied cells, got %d", nonEmpty)
	}
}

func TestNeighborhoodContainsAllPointsWithinCellSize(t *testing.T) {
	dev := compute.NewDevice(2)
	defer dev.Close()

	rng := rand.New(rand.NewSource(11))
	params := Params{CellSize: 0.4, Resolution: [3]int{10, 10, 10}}
	const n = 2000
	points := compute.NewPingPong("pts", randomPoints(rng, n, 4, mgl32.Vec3{}))
	grid, err := NewGrid(dev, "test", n, params)
	if err != nil {
		t.Fatal(err)
	}
	grid.Build(points, mgl32.Ident4())
	sorted := points.Live().GetData()
	look := grid.Lookup()

	for q := 0; q < 200; q++ {
		query := sorted[rng.Intn(n)].Position
		visited := make(map[int]bool)
		look.ForEachNeighbor(query, func(i int) { visited[i] = true })

		for i, p := range sorted {
			if p.Position.Sub(query).Len() <= params.CellSize && !visited[i] {
				t.Fatalf("point %d at distance %g not in neighborhood", i, p.Position.Sub(query).Len())
			}
		}
	}
}

func TestTransformedGrid(t *testing.T) {
	dev := compute.NewDevice(2)
	defer dev.Close()

	rng := rand.New(rand.NewSource(5))
	params := Params{CellSize: 0.5, Resolution: [3]int{6, 6, 6}}
	offset := mgl32.Vec3{10, -3, 7}
	rot := mgl32.QuatRotate(0.6, mgl32.Vec3{0, 1, 0})
	pose := mgl32.Translate3D(offset[0], offset[1], offset[2]).Mul4(rot.Mat4())

	local := randomPoints(rng, 300, 3, mgl32.Vec3{})
	world := make([]particle.State, len(local))
	for i, s := range local {
		world[i] = s
		world[i].Position = mgl32.TransformCoordinate(s.Position, pose)
	}

	localPts := compute.NewPingPong("local", local)
	worldPts := compute.NewPingPong("world", world)
	a, _ := NewGrid(dev, "local", len(local), params)
	b, _ := NewGrid(dev, "world", len(world), params)
	a.Build(localPts, mgl32.Ident4())
	b.Build(worldPts, pose)

	ra, rb := a.CellRanges(), b.CellRanges()
	for i := range ra {
		if ra[i].End-ra[i].Start != rb[i].End-rb[i].Start {
			t.Fatalf("cell %d: %d points locally, %d under pose", i, ra[i].End-ra[i].Start, rb[i].End-rb[i].Start)
		}
	}
}

func TestNewGridErrors(t *testing.T) {
	dev := compute.NewDevice(1)
	tests := []struct {
		name   string
		count  int
		params Params
		want   error
	}{
		{"zero axis", 8, Params{CellSize: 1, Resolution: [3]int{4, 0, 4}}, ErrResolution},
		{"negative cell", 8, Params{CellSize: -1, Resolution: [3]int{4, 4, 4}}, ErrCellSize},
		{"no points", 0, Params{CellSize: 1, Resolution: [3]int{4, 4, 4}}, ErrNoPoints},
		{"huge", 8, Params{CellSize: 1, Resolution: [3]int{1 << 11, 1 << 11, 1 << 11}}, ErrTooManyCells},
	}
	for _, tc := range tests {
		_, err := NewGrid(dev, tc.name, tc.count, tc.params)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestResolutionFor(t *testing.T) {
	got := ResolutionFor(mgl32.Vec3{40, 30, 40}, 0.4)
	if got != [3]int{100, 75, 100} {
		t.Errorf("expected [100 75 100], got %v", got)
	}
}

func TestBuildReleasedPointsPanics(t *testing.T) {
	dev := compute.NewDevice(1)
	points := compute.NewPingPong("pts", make([]particle.State, 4))
	grid, _ := NewGrid(dev, "test", 4, Params{CellSize: 1, Resolution: [3]int{2, 2, 2}})
	points.Release()

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, compute.ErrReleased) {
			t.Errorf("expected ErrReleased panic, got %v", r)
		}
	}()
	grid.Build(points, mgl32.Ident4())
}
