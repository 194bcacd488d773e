// Package pool provides the fixed-size worker pool that executes
// control-plane jobs for the server.
package pool

import (
	"sync"

	snowcast "github.com/ringtack/snowcast"
)

// DefaultWorkers is the pool size used when the configuration does not say
// otherwise.
const DefaultWorkers = 8

// A job links one unit of control-plane work into the FIFO. Ownership of
// whatever the work closes over transfers to the pool at enqueue time:
// exactly one of run or discard is invoked.
type job struct {
	run     func()
	discard func()
	next    *job
}

// WorkerPool drains a FIFO of jobs with a fixed set of worker goroutines.
// Workers exit on the stopped flag; jobs still queued at shutdown are
// discarded, never run.
type WorkerPool struct {
	mu        sync.Mutex
	available *sync.Cond // a job was queued, or the pool stopped
	empty     *sync.Cond // the queue drained, or the pool stopped
	head      *job
	tail      *job
	stopped   bool
	wg        sync.WaitGroup
}

// NewWorkerPool starts workers goroutines draining the queue.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &WorkerPool{}
	p.available = sync.NewCond(&p.mu)
	p.empty = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.workLoop()
	}
	return p
}

// AddJob enqueues work. discard may be nil; when set, it runs instead of
// run if the pool shuts down before a worker picks the job up. Returns
// ErrStopped once the pool has stopped.
func (p *WorkerPool) AddJob(run func(), discard func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return snowcast.ErrStopped
	}
	j := &job{run: run, discard: discard}
	if p.tail == nil {
		p.head = j
	} else {
		p.tail.next = j
	}
	p.tail = j
	p.available.Signal()
	return nil
}

// WaitIdle blocks until the queue is empty or the pool is stopped. It says
// nothing about jobs already picked up by workers.
func (p *WorkerPool) WaitIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.head != nil && !p.stopped {
		p.empty.Wait()
	}
}

// Shutdown stops the pool: workers exit after their current job, leftover
// queued jobs are discarded. Idempotent.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	p.available.Broadcast()
	p.empty.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	leftover := p.head
	p.head = nil
	p.tail = nil
	p.mu.Unlock()
	for j := leftover; j != nil; j = j.next {
		if j.discard != nil {
			j.discard()
		}
	}
}

func (p *WorkerPool) workLoop() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.head == nil && !p.stopped {
			p.available.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		j := p.head
		p.head = j.next
		if p.head == nil {
			p.tail = nil
		}
		p.mu.Unlock()

		j.run()

		p.mu.Lock()
		if p.head == nil {
			p.empty.Broadcast()
		}
		p.mu.Unlock()
	}
}
