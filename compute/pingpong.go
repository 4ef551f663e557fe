package compute

// PingPong is a pair of equal-length buffers of which exactly one is live.
// Swap exchanges the roles of the two slots without copying.
type PingPong[T any] struct {
	slots [2]*Buffer[T]
	live  int
}

// NewPingPong creates the pair with initial as the live contents and a
// zeroed scratch slot.
func NewPingPong[T any](name string, initial []T) *PingPong[T] {
	return &PingPong[T]{
		slots: [2]*Buffer[T]{
			NewBufferFrom(name+".0", initial),
			NewBuffer[T](name+".1", len(initial)),
		},
	}
}

// Live returns the buffer holding current state.
func (p *PingPong[T]) Live() *Buffer[T] { return p.slots[p.live] }

// Scratch returns the buffer the next write pass targets.
func (p *PingPong[T]) Scratch() *Buffer[T] { return p.slots[1-p.live] }

// Swap makes the scratch buffer live.
func (p *PingPong[T]) Swap() {
	p.Live().mustLive("Swap")
	p.live = 1 - p.live
}

// Len returns the element count of the live buffer.
func (p *PingPong[T]) Len() int { return p.Live().Len() }

// Release releases both slots.
func (p *PingPong[T]) Release() {
	p.slots[0].Release()
	p.slots[1].Release()
}
