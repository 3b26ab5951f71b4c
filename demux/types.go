// Package demux implements the per-tile, per-barcode demultiplexing
// pipeline: a priority-scheduled set of reader and writer tasks that pull
// clusters from a ClusterSource, route them into per-tile external-sort
// buffers keyed by barcode, and flush those buffers to the matching
// RecordSink in strict tile order, per barcode, regardless of the order in
// which tiles finish reading.
package demux

import (
	"context"
	"fmt"

	"github.com/grailbio/bcldemux/readstructure"
)

// Record is one output read produced from a Cluster's output projection: the
// concatenated, non-skip bases/qualities of one Template segment, plus the
// metadata needed to build a comparator key and route it to a sink.
type Record struct {
	// Name is the read name shared by both records of a paired cluster; see
	// BuildReadName.
	Name string
	// Bases and Quals are this record's payload, sliced from the owning
	// Cluster's Template ReadSegment.
	Bases []byte
	Quals []byte
	// FirstOfPair is true for the record built from the Read Structure's
	// first Template segment.
	FirstOfPair bool
	// SecondOfPair is true for the record built from the second Template
	// segment, when present.
	SecondOfPair bool
}

// ReadSegment is the sequence and optional quality of one non-skip segment
// of one Cluster.
type ReadSegment struct {
	Bases []byte
	Quals []byte
}

// Cluster is one spatial spot's basecalls for a tile: one ReadSegment per
// non-skip segment of the active Read Structure, in Read Structure segment
// order (restricted to OutputProjection positions).
type Cluster struct {
	Lane   int
	Tile   string
	X, Y   int
	PF     bool
	RunBarcode string

	// Segments holds one ReadSegment per readstructure.Indexed entry of the
	// active ReadStructure.OutputProjection(), in that order.
	Segments []ReadSegment

	// MatchedBarcodeKey, if non-nil, is a pre-assigned barcode key that
	// bypasses the Barcode Matcher entirely (see resolveBarcodeKey).
	MatchedBarcodeKey *string
}

// ClusterSource is a finite, non-restartable sequence of Clusters for one
// (lane, tile). Implementations are provided by the vendor file-format
// layer; demux only consumes this interface.
type ClusterSource interface {
	// Next returns the next Cluster, or ok=false when the source is
	// exhausted. Next returns an error if the underlying read failed.
	Next(ctx context.Context) (c Cluster, ok bool, err error)
}

// RecordSink accepts already-sorted Records for one output (one barcode key,
// or the null key for no-match).
type RecordSink interface {
	// Write appends one record, which arrives in globally sorted order for
	// this sink.
	Write(ctx context.Context, rec Record) error
	// Close finalizes the sink. Called exactly once after the last Write.
	Close(ctx context.Context) error
}

// RoutingError reports that a cluster's resolved barcode key has no
// registered sink.
type RoutingError struct {
	Key string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("demux: no sink registered for barcode key %q", e.Key)
}

// buildOutputRecords slices cluster's Template segments (per rs's output
// projection) into one or two demux.Records, assigning the shared read name
// and pair flags.
func buildOutputRecords(rs readstructure.ReadStructure, cluster Cluster, name string) ([]Record, error) {
	templates := rs.Templates()
	if len(templates) == 0 || len(templates) > 2 {
		return nil, fmt.Errorf("demux: read structure has %d template segments, want 1 or 2", len(templates))
	}
	projection := rs.OutputProjection()
	segByIndex := make(map[int]ReadSegment, len(projection))
	for i, p := range projection {
		if i >= len(cluster.Segments) {
			return nil, fmt.Errorf("demux: cluster has %d segments, output projection needs %d", len(cluster.Segments), len(projection))
		}
		segByIndex[p.Index] = cluster.Segments[i]
	}

	records := make([]Record, 0, len(templates))
	for i, t := range templates {
		seg, ok := segByIndex[t.Index]
		if !ok {
			return nil, fmt.Errorf("demux: template segment at index %d missing from cluster output projection", t.Index)
		}
		records = append(records, Record{
			Name:         name,
			Bases:        seg.Bases,
			Quals:        seg.Quals,
			FirstOfPair:  i == 0,
			SecondOfPair: i == 1,
		})
	}
	return records, nil
}
