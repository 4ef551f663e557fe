package compute

import (
	"errors"
	"testing"
)

// expectPanic runs fn and returns the recovered error, failing if fn returns normally.
func expectPanic(t *testing.T, fn func()) error {
	t.Helper()
	var got any
	func() {
		defer func() { got = recover() }()
		fn()
	}()
	if got == nil {
		t.Fatal("expected panic")
	}
	err, ok := got.(error)
	if !ok {
		t.Fatalf("expected error panic value, got %T: %v", got, got)
	}
	return err
}

func doubleProgram() *Program {
	return NewProgram("test",
		KernelSpec{
			Name:      "double",
			GroupSize: [3]int{4, 1, 1},
			Slots:     []Slot{{"In", Read}, {"Out", Write}},
			Fn: func(g Group, a *Args) {
				in := Slice[float32](a, "In")
				out := Slice[float32](a, "Out")
				n := a.Int("_Count")
				for t := 0; t < g.Size[0]; t++ {
					i := g.Base() + t
					if i >= n {
						return
					}
					out[i] = in[i] * a.Float("_Scale")
				}
			},
		},
	)
}

func TestBufferReleasePoisons(t *testing.T) {
	b := NewBufferFrom("b", []int{1, 2, 3})
	if b.Len() != 3 {
		t.Fatalf("expected len 3, got %d", b.Len())
	}
	b.Release()
	if !b.Released() {
		t.Error("expected buffer to report released")
	}

	ops := map[string]func(){
		"Len":     func() { b.Len() },
		"GetData": func() { b.GetData() },
		"SetData": func() { b.SetData([]int{1}) },
		"Fill":    func() { b.Fill(0) },
		"Release": func() { b.Release() },
	}
	for name, op := range ops {
		err := expectPanic(t, op)
		if !errors.Is(err, ErrReleased) {
			t.Errorf("%s: expected ErrReleased, got %v", name, err)
		}
	}
}

func TestBufferGetDataCopies(t *testing.T) {
	b := NewBufferFrom("b", []int{1, 2, 3})
	got := b.GetData()
	got[0] = 99
	if b.GetData()[0] != 1 {
		t.Error("GetData should return a copy")
	}
}

func TestPingPongSwap(t *testing.T) {
	p := NewPingPong("state", []int{1, 2, 3, 4})
	live, scratch := p.Live(), p.Scratch()
	if live == scratch {
		t.Fatal("live and scratch must be distinct")
	}
	scratch.SetData([]int{5, 6, 7, 8})
	p.Swap()
	if p.Live() != scratch || p.Scratch() != live {
		t.Fatal("swap should exchange slots")
	}
	if p.Live().GetData()[0] != 5 {
		t.Errorf("expected swapped contents, got %v", p.Live().GetData())
	}
	for i := 0; i < 7; i++ {
		p.Swap()
	}
	if p.Len() != 4 {
		t.Errorf("expected len 4 after swaps, got %d", p.Len())
	}
	p.Release()
	if !live.Released() || !scratch.Released() {
		t.Error("release should free both slots")
	}
}

func TestFindKernel(t *testing.T) {
	p := doubleProgram()
	if _, err := p.FindKernel("double"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := p.FindKernel("triple")
	if !errors.Is(err, ErrKernelNotFound) {
		t.Errorf("expected ErrKernelNotFound, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"inline", 1, 10},
		{"pool", 4, 1000},
		{"more workers than groups", 16, 9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dev := NewDevice(tc.workers)
			defer dev.Close()

			p := doubleProgram()
			k, _ := p.FindKernel("double")
			src := make([]float32, tc.n)
			for i := range src {
				src[i] = float32(i)
			}
			in := NewBufferFrom("in", src)
			out := NewBuffer[float32]("out", tc.n)
			k.SetBuffer("In", in)
			k.SetBuffer("Out", out)
			p.SetInt("_Count", tc.n)
			p.SetFloat("_Scale", 2)

			dev.Dispatch(k, k.Groups(tc.n), 1, 1)

			for i, v := range out.GetData() {
				if v != float32(2*i) {
					t.Fatalf("out[%d] = %f, want %d", i, v, 2*i)
				}
			}
			if dev.Dispatches() != 1 {
				t.Errorf("expected 1 dispatch, got %d", dev.Dispatches())
			}
		})
	}
}

func TestDispatchGuards(t *testing.T) {
	dev := NewDevice(2)
	defer dev.Close()

	t.Run("unbound", func(t *testing.T) {
		k, _ := doubleProgram().FindKernel("double")
		k.SetBuffer("In", NewBuffer[float32]("in", 4))
		err := expectPanic(t, func() { dev.Dispatch(k, 1, 1, 1) })
		if !errors.Is(err, ErrUnbound) {
			t.Errorf("expected ErrUnbound, got %v", err)
		}
	})

	t.Run("aliased", func(t *testing.T) {
		k, _ := doubleProgram().FindKernel("double")
		b := NewBuffer[float32]("both", 4)
		k.SetBuffer("In", b)
		k.SetBuffer("Out", b)
		err := expectPanic(t, func() { dev.Dispatch(k, 1, 1, 1) })
		if !errors.Is(err, ErrAliased) {
			t.Errorf("expected ErrAliased, got %v", err)
		}
	})

	t.Run("released", func(t *testing.T) {
		k, _ := doubleProgram().FindKernel("double")
		in := NewBuffer[float32]("in", 4)
		k.SetBuffer("In", in)
		k.SetBuffer("Out", NewBuffer[float32]("out", 4))
		in.Release()
		err := expectPanic(t, func() { dev.Dispatch(k, 1, 1, 1) })
		if !errors.Is(err, ErrReleased) {
			t.Errorf("expected ErrReleased, got %v", err)
		}
	})

	t.Run("unknown slot", func(t *testing.T) {
		k, _ := doubleProgram().FindKernel("double")
		err := expectPanic(t, func() { k.SetBuffer("Nope", NewBuffer[float32]("x", 1)) })
		if !errors.Is(err, ErrUnknownSlot) {
			t.Errorf("expected ErrUnknownSlot, got %v", err)
		}
	})

	t.Run("slot type", func(t *testing.T) {
		k, _ := doubleProgram().FindKernel("double")
		k.SetBuffer("In", NewBuffer[int]("in", 64))
		k.SetBuffer("Out", NewBuffer[float32]("out", 64))
		k.program.SetInt("_Count", 64)
		err := expectPanic(t, func() { dev.Dispatch(k, 16, 1, 1) })
		if !errors.Is(err, ErrSlotType) {
			t.Errorf("expected ErrSlotType, got %v", err)
		}
	})
}

func TestGroupIDs(t *testing.T) {
	dev := NewDevice(3)
	defer dev.Close()

	seen := NewBuffer[int32]("seen", 4*3*2)
	p := NewProgram("ids", KernelSpec{
		Name:  "mark",
		Slots: []Slot{{"Seen", Write}},
		Fn: func(g Group, a *Args) {
			s := Slice[int32](a, "Seen")
			lin := g.ID[0] + g.ID[1]*g.Count[0] + g.ID[2]*g.Count[0]*g.Count[1]
			s[lin]++
		},
	})
	k, _ := p.FindKernel("mark")
	k.SetBuffer("Seen", seen)
	dev.Dispatch(k, 4, 3, 2)

	for i, v := range seen.GetData() {
		if v != 1 {
			t.Errorf("group %d ran %d times", i, v)
		}
	}
}
