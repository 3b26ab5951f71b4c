package demux

import (
	"context"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bcldemux/extsort"
)

// tileBuffer is the Per-Tile Buffer (C3): a per-barcode-key external-sort
// collection of one tile's records. Owned by exactly one task at a time —
// the Tile Reader while filling, a Writer task while draining one key's
// collection.
type tileBuffer struct {
	tmpDir          string
	maxInRamEntries int
	collections     map[string]*extsort.Collection
}

// newTileBuffer creates a tileBuffer with maxRecordsInRamPerTile divided
// evenly across sinkKeys, per C3's capacity policy. sinkKeys must be the
// Sink Registry's full key set so every barcode a reader might route to has
// a collection ready for it.
func newTileBuffer(tmpDir string, maxRecordsInRamPerTile int, sinkKeys []string) (*tileBuffer, error) {
	if len(sinkKeys) == 0 {
		return nil, fmt.Errorf("demux: tile buffer requires at least one sink key")
	}
	perKey := maxRecordsInRamPerTile / len(sinkKeys)
	if perKey < 1 {
		return nil, fmt.Errorf("demux: max_in_ram_per_tile=%d divided by %d sinks is < 1", maxRecordsInRamPerTile, len(sinkKeys))
	}
	tb := &tileBuffer{
		tmpDir:          tmpDir,
		maxInRamEntries: perKey,
		collections:     make(map[string]*extsort.Collection, len(sinkKeys)),
	}
	for _, key := range sinkKeys {
		tb.collections[key] = extsort.New(tmpDir, perKey)
	}
	return tb, nil
}

// add routes rec into key's collection, comparator-keyed by dedupKey(rec)
// (read name plus pair-end suffix, so the two records of one paired cluster
// never collide with each other in finalizeKey's dedup pass).
func (tb *tileBuffer) add(ctx context.Context, key string, rec Record) error {
	coll, ok := tb.collections[key]
	if !ok {
		return &RoutingError{Key: key}
	}
	return coll.Add(ctx, extsort.Entry{Key: dedupKey(rec), Value: encodeRecord(rec)})
}

// finalizeKey finalizes key's collection and returns a deduplicating
// iterator over its records in read-name order. Finalize must be called at
// most once per key, by the writer task owning that (tile, key) pair.
func (tb *tileBuffer) finalizeKey(ctx context.Context, key string) (*dedupIterator, error) {
	coll, ok := tb.collections[key]
	if !ok {
		return nil, &RoutingError{Key: key}
	}
	it, err := coll.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	return newDedupIterator(it), nil
}

// dedupIterator wraps an extsort.Iterator, dropping adjacent runs of
// records whose comparator key (dedupKey: read name plus pair-end suffix)
// collides, per §4.3: two clusters reported at the same (x, y) are a
// vendor artifact. The pair-end suffix keeps a genuine pair's own first and
// second records from colliding with each other, so only a real same-end
// coordinate collision groups under one key; a single one-entry lookahead
// suffices to find and drop every half of such a colliding run.
type dedupIterator struct {
	inner *extsort.Iterator

	haveLookahead bool
	lookahead     extsort.Entry

	cur Record
	err error

	// Dropped counts records suppressed by a read-name collision, for the
	// caller to log as the required collision note.
	Dropped int
}

func newDedupIterator(inner *extsort.Iterator) *dedupIterator {
	return &dedupIterator{inner: inner}
}

// pull returns the next raw entry, consuming the lookahead slot first.
func (d *dedupIterator) pull() (extsort.Entry, bool) {
	if d.haveLookahead {
		d.haveLookahead = false
		return d.lookahead, true
	}
	if !d.inner.Next() {
		return extsort.Entry{}, false
	}
	return d.inner.Entry(), true
}

// peek returns the next raw entry without consuming it.
func (d *dedupIterator) peek() (extsort.Entry, bool) {
	if !d.haveLookahead {
		if !d.inner.Next() {
			return extsort.Entry{}, false
		}
		d.lookahead = d.inner.Entry()
		d.haveLookahead = true
	}
	return d.lookahead, true
}

// Next advances to the next surviving record, skipping any run of entries
// that share a colliding read name.
func (d *dedupIterator) Next() bool {
	for {
		cur, ok := d.pull()
		if !ok {
			d.err = d.inner.Err()
			return false
		}
		next, hasNext := d.peek()
		if hasNext && next.Key == cur.Key {
			// Collision: drop cur, then drop every further entry sharing
			// this key (covers the well-formed paired-end case of exactly
			// two, and degrades safely if more than two ever collide).
			dropped := 1
			for {
				n, ok := d.peek()
				if !ok || n.Key != cur.Key {
					break
				}
				d.pull()
				dropped++
			}
			d.Dropped += dropped
			log.Error.Printf("demux: dropping %d records colliding on read name %q", dropped, cur.Key)
			continue
		}
		rec, err := decodeRecord(cur.Value)
		if err != nil {
			d.err = err
			return false
		}
		d.cur = rec
		return true
	}
}

// Record returns the record most recently yielded by Next.
func (d *dedupIterator) Record() Record { return d.cur }

// Err returns the first error encountered while iterating, if any.
func (d *dedupIterator) Err() error {
	if d.err != nil {
		return d.err
	}
	return d.inner.Err()
}

// Close releases the underlying extsort.Iterator's resources.
func (d *dedupIterator) Close() error { return d.inner.Close() }
