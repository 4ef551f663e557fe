package compute

import (
	"fmt"
	"runtime"
	"sync"
)

// inlineGroups is the workgroup count below which a dispatch runs on the
// calling goroutine. Below this the channel round trip costs more than the work.
const inlineGroups = 2

// workChunk is a contiguous range of linear workgroup indices.
type workChunk struct {
	start, end int
	kernel     *Kernel
	args       *Args
	count      [3]int
}

// Device executes kernel dispatches on a persistent worker pool.
type Device struct {
	numWorkers int

	workChan chan workChunk // sends work to workers
	doneChan chan any       // nil on success, panic value otherwise
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup
	running  bool

	dispatches uint64
}

// NewDevice creates a device with one worker per GOMAXPROCS slot.
// workers <= 0 selects the default.
func NewDevice(workers int) *Device {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Device{numWorkers: workers}
}

// Workers returns the pool size.
func (d *Device) Workers() int { return d.numWorkers }

// Dispatches returns the number of dispatches issued so far.
func (d *Device) Dispatches() uint64 { return d.dispatches }

func (d *Device) startWorkers() {
	if d.running {
		return
	}
	d.workChan = make(chan workChunk, d.numWorkers)
	d.doneChan = make(chan any, d.numWorkers)
	d.stopChan = make(chan struct{})
	d.running = true

	for i := 0; i < d.numWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Close stops the worker pool. The device can still dispatch afterwards;
// the pool restarts on demand.
func (d *Device) Close() {
	if !d.running {
		return
	}
	close(d.stopChan)
	d.wg.Wait()
	close(d.workChan)
	close(d.doneChan)
	d.running = false
}

func (d *Device) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopChan:
			return
		case chunk, ok := <-d.workChan:
			if !ok {
				return
			}
			d.doneChan <- runChunk(chunk)
		}
	}
}

func runChunk(c workChunk) (failure any) {
	defer func() {
		if r := recover(); r != nil {
			failure = r
		}
	}()
	fn := c.kernel.spec.Fn
	size := c.kernel.spec.GroupSize
	gx, gy := c.count[0], c.count[1]
	for lin := c.start; lin < c.end; lin++ {
		fn(Group{
			ID:    [3]int{lin % gx, (lin / gx) % gy, lin / (gx * gy)},
			Size:  size,
			Count: c.count,
		}, c.args)
	}
	return nil
}

// Dispatch runs gx*gy*gz workgroups of k and returns when all are done.
// Binding errors and kernel panics are re-raised on the caller.
func (d *Device) Dispatch(k *Kernel, gx, gy, gz int) {
	if k.spec.Fn == nil {
		panic(fmt.Errorf("compute: %s.%s has no body: %w", k.program.name, k.spec.Name, ErrKernelNotFound))
	}
	k.validate()
	d.dispatches++

	gy, gz = max(gy, 1), max(gz, 1)
	total := gx * gy * gz
	if total <= 0 {
		return
	}
	args := &Args{kernel: k}
	count := [3]int{gx, gy, gz}

	if total < inlineGroups || d.numWorkers == 1 {
		if failure := runChunk(workChunk{start: 0, end: total, kernel: k, args: args, count: count}); failure != nil {
			panic(failure)
		}
		return
	}

	if !d.running {
		d.startWorkers()
	}

	chunkSize := (total + d.numWorkers - 1) / d.numWorkers
	dispatched := 0
	for w := 0; w < d.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, total)
		if start >= end {
			continue
		}
		d.workChan <- workChunk{start: start, end: end, kernel: k, args: args, count: count}
		dispatched++
	}

	var failure any
	for i := 0; i < dispatched; i++ {
		if r := <-d.doneChan; r != nil && failure == nil {
			failure = r
		}
	}
	if failure != nil {
		panic(failure)
	}
}
