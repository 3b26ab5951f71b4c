package demux

import (
	"context"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/grailbio/bcldemux/barcode"
	"github.com/grailbio/bcldemux/demux/pool"
	"github.com/grailbio/bcldemux/readstructure"
)

// writeState is one (tile, barcode key) cell's progress through the
// Scheduler's walk.
type writeState int

const (
	stateNA writeState = iota
	stateRead
	stateQueuedForWrite
	stateWritten
)

// tileEntry is one tile's mutable scheduling state.
type tileEntry struct {
	name        string
	doneReading bool
	buf         *tileBuffer
	source      ClusterSource
	// barcodes holds a state only for keys this tile's reader has actually
	// seen; a missing entry means stateNA, whether or not the tile is done.
	barcodes map[string]writeState
}

// Scheduler is the Aggregator & Scheduler (C5). It runs one reader task per
// tile and, as tiles finish reading, schedules writer tasks so every sink
// receives its records in strict tile-number order, regardless of which
// tile's reader happens to finish first. The ordering is two-dimensional —
// Sink Registry order outermost, tile-number order innermost — which is why
// it is implemented directly against a mutex and sync.Cond instead of
// reusing a one-dimensional ordered queue.
type Scheduler struct {
	rs            readstructure.ReadStructure
	matcher       *barcode.Matcher
	expectedByKey map[string]barcode.ExpectedBarcode
	registry      *SinkRegistry
	pool          *pool.Pool
	metrics       *barcode.MetricSet

	mu        sync.Mutex
	cond      *sync.Cond
	ctx       context.Context
	tiles     []*tileEntry // tile-number order, fixed after construction.
	submitted bool
	done      bool
	err       errors.Once
}

// NewScheduler builds a Scheduler with one tileEntry per entry of sources,
// ordered by tile-number order. tmpDir and maxInRamPerTile configure every
// tile's Per-Tile Buffer.
func NewScheduler(
	rs readstructure.ReadStructure,
	matcher *barcode.Matcher,
	expectedByKey map[string]barcode.ExpectedBarcode,
	registry *SinkRegistry,
	workerPool *pool.Pool,
	metrics *barcode.MetricSet,
	tmpDir string,
	maxInRamPerTile int,
	sources map[string]ClusterSource,
) (*Scheduler, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return TileLess(names[i], names[j]) })

	s := &Scheduler{
		rs:            rs,
		matcher:       matcher,
		expectedByKey: expectedByKey,
		registry:      registry,
		pool:          workerPool,
		metrics:       metrics,
	}
	s.cond = sync.NewCond(&s.mu)

	keys := registry.Keys()
	for _, name := range names {
		buf, err := newTileBuffer(tmpDir, maxInRamPerTile, keys)
		if err != nil {
			return nil, err
		}
		s.tiles = append(s.tiles, &tileEntry{
			name:     name,
			buf:      buf,
			source:   sources[name],
			barcodes: make(map[string]writeState),
		})
	}
	return s, nil
}

// Run submits one reader task per tile and blocks until every tile has
// finished reading and every barcode key it produced has been written, or
// until the first task failure is observed. Run must be called at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.submitted {
		s.mu.Unlock()
		panic("demux: Scheduler.Run called twice")
	}
	s.submitted = true
	s.ctx = ctx
	tiles := append([]*tileEntry(nil), s.tiles...)
	s.mu.Unlock()

	// Readers are submitted at decreasing priority, so the first tile
	// preempts later ones whenever the pool is read-starved; writers always
	// outrank every reader (priority 1 vs. negative), per the pool's
	// contract.
	for i, t := range tiles {
		priority := -(i + 1)
		t := t
		s.pool.Submit(priority, func() error { return s.runReader(t) })
	}

	s.mu.Lock()
	for !s.done && s.err.Err() == nil {
		s.cond.Wait()
	}
	s.mu.Unlock()
	return s.err.Err()
}

func (s *Scheduler) runReader(t *tileEntry) error {
	local := barcode.NewMetricSet()
	seen, err := processTile(s.ctx, s.rs, t.source, t.buf, s.matcher, local, s.expectedByKey)
	if err != nil {
		s.fail(err)
		return err
	}
	s.metrics.Merge(local)
	s.completeTile(t, seen)
	return nil
}

// completeTile marks t done reading, records the keys it actually saw, and
// resumes the scan.
func (s *Scheduler) completeTile(t *tileEntry, seen map[string]bool) {
	s.mu.Lock()
	t.doneReading = true
	for key := range seen {
		t.barcodes[key] = stateRead
	}
	s.mu.Unlock()
	s.scan()
}

// scan is the find_and_enqueue_or_complete walk: for each barcode key in
// Sink Registry order, walk tiles in tile-number order looking for the
// first tile ready to have that key written. A tile whose key is still NA
// and whose reader has not finished blocks the walk for that key entirely —
// a later tile's key can never be written ahead of an earlier tile whose
// fate for this key is still unknown.
func (s *Scheduler) scan() {
	type job struct {
		t   *tileEntry
		key string
	}

	s.mu.Lock()
	var jobs []job
	for _, key := range s.registry.Keys() {
		for _, t := range s.tiles {
			state := t.barcodes[key]
			if state == stateNA {
				if !t.doneReading {
					break
				}
				continue // this tile's reader finished without producing key.
			}
			if state == stateWritten {
				continue
			}
			if state == stateQueuedForWrite {
				break // already in flight; nothing more to do for key now.
			}
			t.barcodes[key] = stateQueuedForWrite
			jobs = append(jobs, job{t: t, key: key})
			break
		}
	}
	complete := s.isComplete()
	ctx := s.ctx
	s.mu.Unlock()

	for _, j := range jobs {
		j := j
		s.pool.Submit(1, func() error { return s.runWriter(ctx, j.t, j.key) })
	}

	if complete {
		s.mu.Lock()
		s.done = true
		s.mu.Unlock()
		s.cond.Broadcast()
	}
}

// isComplete reports whether every tile has finished reading and every
// barcode key it produced has been written. Caller must hold s.mu.
func (s *Scheduler) isComplete() bool {
	for _, t := range s.tiles {
		if !t.doneReading {
			return false
		}
		for _, state := range t.barcodes {
			if state != stateWritten {
				return false
			}
		}
	}
	return true
}

// runWriter drains t's (tile, key) buffer to its sink, then resumes the scan
// so the next tile waiting on key (or another key whose turn has now come)
// gets enqueued.
func (s *Scheduler) runWriter(ctx context.Context, t *tileEntry, key string) error {
	it, err := t.buf.finalizeKey(ctx, key)
	if err != nil {
		s.fail(err)
		return err
	}
	defer it.Close()

	sink, err := s.registry.Route(key)
	if err != nil {
		s.fail(err)
		return err
	}

	for it.Next() {
		if err := sink.Write(ctx, it.Record()); err != nil {
			s.fail(err)
			return err
		}
	}
	if err := it.Err(); err != nil {
		s.fail(err)
		return err
	}
	if it.Dropped > 0 {
		log.Debug.Printf("demux: tile %s barcode %q dropped %d colliding records", t.name, key, it.Dropped)
	}

	s.mu.Lock()
	t.barcodes[key] = stateWritten
	s.mu.Unlock()
	s.scan()
	return nil
}

// fail records the first failure seen by any task and wakes Run. err must be
// set under s.mu: Run checks s.err.Err() and parks in s.cond.Wait() while
// holding s.mu, so a failure set without the lock could land between that
// check and the Wait call, and the broadcast that follows would never be
// seen. The broadcast itself is sent after the lock is released.
func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.err.Set(err)
	s.mu.Unlock()
	s.cond.Broadcast()
}
