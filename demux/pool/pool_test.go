package pool

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(2)
	var mu sync.Mutex
	var ran []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		p.Submit(0, func() error {
			defer wg.Done()
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
			return nil
		})
	}
	wg.Wait()
	p.Shutdown()
	assert.Len(t, ran, 10)
}

func TestPoolPrioritizesHigherPriorityFirst(t *testing.T) {
	// single worker makes execution order deterministic.
	p := New(1)

	var mu sync.Mutex
	var order []string
	started := make(chan struct{})
	release := make(chan struct{})

	// Block the single worker so the next two submissions queue up behind
	// it, letting priority decide which runs next.
	p.Submit(0, func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	var wg sync.WaitGroup
	wg.Add(2)
	p.Submit(-1, func() error {
		mu.Lock()
		order = append(order, "reader")
		mu.Unlock()
		wg.Done()
		return nil
	})
	p.Submit(1, func() error {
		mu.Lock()
		order = append(order, "writer")
		mu.Unlock()
		wg.Done()
		return nil
	})

	close(release)
	wg.Wait()
	p.Shutdown()

	require.Len(t, order, 2)
	assert.Equal(t, "writer", order[0])
	assert.Equal(t, "reader", order[1])
}

func TestResolveParallelism(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), ResolveParallelism(0))
	assert.Equal(t, 5, ResolveParallelism(5))
	assert.GreaterOrEqual(t, ResolveParallelism(-1000), 1)
}

func TestPoolSubmitAfterShutdownPanics(t *testing.T) {
	p := New(1)
	p.Shutdown()
	assert.Panics(t, func() {
		p.Submit(0, func() error { return nil })
	})
}

func TestPoolShutdownNowDropsQueuedTasks(t *testing.T) {
	p := New(1)
	started := make(chan struct{})
	release := make(chan struct{})
	p.Submit(0, func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	var ranExtra bool
	p.Submit(0, func() error {
		ranExtra = true
		return nil
	})

	// ShutdownNow waits for the running task, so call it from another
	// goroutine and release the blocked task only once the queue has been
	// discarded.
	shutdownDone := make(chan struct{})
	go func() {
		p.ShutdownNow()
		close(shutdownDone)
	}()
	for {
		p.mu.Lock()
		stopped := p.shutdown
		p.mu.Unlock()
		if stopped {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	<-shutdownDone
	assert.False(t, ranExtra)
}
