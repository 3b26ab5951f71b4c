// Package pool implements the Priority Thread Pool (C6): a fixed-size
// worker pool that executes submitted tasks in strict priority order,
// largest priority first. Writers (priority ≥ 1) always run before readers
// (negative priority) once both are queued, the same way markduplicates
// drains a fixed number of worker goroutines from a shared channel, except
// ordered by a priority queue instead of FIFO.
package pool

import (
	"container/heap"
	"runtime"
	"sync"

	"github.com/grailbio/base/log"
)

// ResolveParallelism applies the §4.6 pool-size override convention:
// positive n is used exactly, zero means cores, negative means
// cores + n (still floored at 1).
func ResolveParallelism(n int) int {
	cores := runtime.NumCPU()
	switch {
	case n > 0:
		return n
	case n == 0:
		return cores
	default:
		if cores+n < 1 {
			return 1
		}
		return cores + n
	}
}

// task is one queued unit of work.
type task struct {
	priority int
	seq      int64 // insertion order, to break priority ties FIFO.
	fn       func() error
}

// taskHeap is a max-heap by priority, with lower seq (earlier submission)
// breaking ties so same-priority tasks run FIFO.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Pool is a fixed-size priority worker pool. Submitted tasks run on one of
// Pool's worker goroutines as soon as one is free and the task is the
// highest-priority item queued.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	heap     taskHeap
	nextSeq  int64
	shutdown bool
	wg       sync.WaitGroup
}

// New starts a Pool with the given number of worker goroutines. Use
// ResolveParallelism to turn a user-supplied override into a concrete
// worker count.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		fn := p.next()
		if fn == nil {
			return
		}
		if err := fn(); err != nil {
			log.Error.Printf("pool: task returned error: %v", err)
		}
	}
}

// next blocks until a task is available or the pool is shut down, returning
// nil in the latter case once the queue has drained.
func (p *Pool) next() func() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.heap) == 0 {
		if p.shutdown {
			return nil
		}
		p.cond.Wait()
	}
	t := heap.Pop(&p.heap).(*task)
	return t.fn
}

// Submit enqueues fn to run at the given priority. Larger priority values
// run first; among equal priorities, submission order is preserved.
// Submit panics if called after Shutdown.
func (p *Pool) Submit(priority int, fn func() error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		panic("pool: Submit called after Shutdown")
	}
	seq := p.nextSeq
	p.nextSeq++
	heap.Push(&p.heap, &task{priority: priority, seq: seq, fn: fn})
	p.mu.Unlock()
	p.cond.Signal()
}

// Shutdown stops accepting new tasks, lets already-queued tasks drain, and
// waits for every worker goroutine to exit. It does not interrupt a task
// that is already running.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// ShutdownNow stops accepting new tasks and discards anything still queued;
// it still waits for in-flight tasks (already popped by a worker) to
// return, since the pool has no way to interrupt a running goroutine.
func (p *Pool) ShutdownNow() {
	p.mu.Lock()
	p.shutdown = true
	p.heap = nil
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
