package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snowcast "github.com/ringtack/snowcast"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Shutdown()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		err := p.AddJob(func() {
			atomic.AddInt64(&ran, 1)
			wg.Done()
		}, nil)
		require.Nil(t, err)
	}
	wg.Wait()
	assert.EqualValues(t, 100, atomic.LoadInt64(&ran))
}

func TestPoolWaitIdle(t *testing.T) {
	p := NewWorkerPool(2)
	defer p.Shutdown()

	var ran int64
	for i := 0; i < 20; i++ {
		err := p.AddJob(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&ran, 1)
		}, nil)
		require.Nil(t, err)
	}
	p.WaitIdle()
	// The queue is empty; at most the worker count can still be mid-job.
	assert.GreaterOrEqual(t, atomic.LoadInt64(&ran), int64(18))
}

func TestPoolAddAfterShutdown(t *testing.T) {
	p := NewWorkerPool(1)
	p.Shutdown()

	err := p.AddJob(func() { t.Error("job ran after shutdown") }, nil)
	assert.ErrorIs(t, err, snowcast.ErrStopped)
}

func TestPoolShutdownDiscardsQueuedJobs(t *testing.T) {
	p := NewWorkerPool(1)

	gate := make(chan struct{})
	picked := make(chan struct{})
	err := p.AddJob(func() {
		close(picked)
		<-gate
	}, nil)
	require.Nil(t, err)
	<-picked

	// The lone worker is busy, so this job stays queued until shutdown.
	var ran, discarded int64
	err = p.AddJob(
		func() { atomic.AddInt64(&ran, 1) },
		func() { atomic.AddInt64(&discarded, 1) },
	)
	require.Nil(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	p.Shutdown()

	assert.EqualValues(t, 0, atomic.LoadInt64(&ran))
	assert.EqualValues(t, 1, atomic.LoadInt64(&discarded))
}

func TestPoolShutdownIdempotent(t *testing.T) {
	p := NewWorkerPool(2)
	p.Shutdown()
	p.Shutdown()
}
