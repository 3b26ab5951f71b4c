// Package extsort implements an external-sort buffer: a sequence of
// key/value entries accumulated in memory up to a record-count budget, then spilled
// to disk as a sorted run when the budget is exceeded, and finally merged
// into one globally sorted stream via an N-way merge over a red-black tree
// of run cursors. Keys sort lexicographically as strings.
package extsort

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Entry is one key/value pair held by a Collection.
type Entry struct {
	Key   string
	Value []byte
}

func (e Entry) compare(other Entry) int {
	if e.Key < other.Key {
		return -1
	}
	if e.Key > other.Key {
		return 1
	}
	return 0
}

// Collection accumulates Entries, spilling to temporary files under dir
// whenever the in-memory buffer reaches maxInRamEntries records, and
// produces a single sorted Iterator over everything added once Finalize is
// called. The budget counts records, not bytes, mirroring sorter.Sorter's
// SortBatchSize.
//
// A Collection is safe for concurrent Add calls but Finalize must be called
// only after every Add has returned, mirroring sorter.Sorter's AddRecord/
// Close contract.
type Collection struct {
	dir             string
	maxInRamEntries int

	mu        sync.Mutex
	buf       []Entry
	spills    []string
	nextSpill int
	err       errors.Once
	finalized bool
}

// New creates a Collection that spills to newly created files in dir when
// its in-memory buffer reaches maxInRamEntries records. A non-positive
// maxInRamEntries disables spilling; the whole collection is then sorted in
// memory by Finalize.
func New(dir string, maxInRamEntries int) *Collection {
	return &Collection{dir: dir, maxInRamEntries: maxInRamEntries}
}

// Add appends one entry. The Collection copies neither Key nor Value; the
// caller must not mutate them afterward.
func (c *Collection) Add(ctx context.Context, e Entry) error {
	c.mu.Lock()
	if c.finalized {
		c.mu.Unlock()
		return fmt.Errorf("extsort: Add called after Finalize")
	}
	c.buf = append(c.buf, e)
	spill := c.maxInRamEntries > 0 && len(c.buf) >= c.maxInRamEntries
	var toSpill []Entry
	if spill {
		toSpill = c.buf
		c.buf = nil
	}
	c.mu.Unlock()

	if spill {
		if err := c.spill(ctx, toSpill); err != nil {
			c.err.Set(err)
			return err
		}
	}
	return nil
}

func (c *Collection) spill(ctx context.Context, entries []Entry) error {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].compare(entries[j]) < 0 })

	c.mu.Lock()
	idx := c.nextSpill
	c.nextSpill++
	c.mu.Unlock()

	path := fmt.Sprintf("%s/spill-%08d", c.dir, idx)
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "extsort: creating spill file", path)
	}
	w := newRunWriter(out.Writer(ctx))
	for _, e := range entries {
		if err := w.write(e); err != nil {
			_ = out.Close(ctx)
			return err
		}
	}
	if err := out.Close(ctx); err != nil {
		return errors.E(err, "extsort: closing spill file", path)
	}
	log.Debug.Printf("extsort: spilled %d entries to %s", len(entries), path)

	c.mu.Lock()
	c.spills = append(c.spills, path)
	c.mu.Unlock()
	return nil
}

// Finalize closes the Collection to further Adds and returns an Iterator
// that yields every added Entry in ascending key order. Entries added in the
// same in-memory batch with equal keys preserve insertion order; entries
// merged across spill runs and the final in-memory tail compare equal keys
// by which run they came from, oldest first.
func (c *Collection) Finalize(ctx context.Context) (*Iterator, error) {
	c.mu.Lock()
	c.finalized = true
	tail := c.buf
	c.buf = nil
	spills := c.spills
	c.mu.Unlock()

	if err := c.err.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(tail, func(i, j int) bool { return tail[i].compare(tail[j]) < 0 })

	readers := make([]*runReader, 0, len(spills)+1)
	for _, path := range spills {
		in, err := file.Open(ctx, path)
		if err != nil {
			return nil, errors.E(err, "extsort: opening spill file", path)
		}
		readers = append(readers, newRunReader(ctx, path, in))
	}
	if len(tail) > 0 {
		readers = append(readers, newMemoryRunReader(tail))
	}
	return newIterator(ctx, readers), nil
}

// mergeLeaf is one active run in the N-way merge tree.
type mergeLeaf struct {
	seq    int
	reader *runReader
}

func (l *mergeLeaf) Compare(other llrb.Comparable) int {
	o := other.(*mergeLeaf)
	if c := l.reader.entry.compare(o.reader.entry); c != 0 {
		return c
	}
	return l.seq - o.seq
}

// Iterator yields the merged, sorted sequence of Entries produced by
// Collection.Finalize. It performs an N-way merge over the active runs
// using a red-black tree the same way internalMergeShards orders BAM sort
// shards: the tree's minimum is always the run to read from next, and a run
// is reinserted after each read until it is exhausted.
type Iterator struct {
	ctx   context.Context
	leafs llrb.Tree
	all   []*runReader
	cur   Entry
	err   error
}

func newIterator(ctx context.Context, readers []*runReader) *Iterator {
	it := &Iterator{ctx: ctx, all: readers}
	for i, r := range readers {
		if r.scan() {
			it.leafs.Insert(&mergeLeaf{seq: i, reader: r})
		}
	}
	return it
}

// min returns (and removes from the tree) the leaf holding the smallest key.
func (it *Iterator) min() *mergeLeaf {
	var top *mergeLeaf
	it.leafs.Do(func(item llrb.Comparable) bool {
		top = item.(*mergeLeaf)
		return true // stop after the first (smallest) item.
	})
	if top == nil {
		return nil
	}
	it.leafs.DeleteMin()
	return top
}

// Next advances the iterator. It returns false at end of stream or on
// error; check Err() to distinguish the two.
func (it *Iterator) Next() bool {
	leaf := it.min()
	if leaf == nil {
		return false
	}
	it.cur = leaf.reader.entry
	if err := leaf.reader.err(); err != nil {
		it.err = err
		return false
	}
	if leaf.reader.scan() {
		it.leafs.Insert(leaf)
	}
	return true
}

// Entry returns the entry most recently yielded by Next.
func (it *Iterator) Entry() Entry { return it.cur }

// Err returns the first error encountered while iterating, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases resources held by the iterator's underlying runs.
func (it *Iterator) Close() error {
	var first error
	for _, r := range it.all {
		if err := r.close(it.ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
