package demux

import (
	"context"
	"fmt"

	"github.com/grailbio/bcldemux/barcode"
	"github.com/grailbio/bcldemux/readstructure"
)

// processTile is the Tile Reader (C4): it drains source, turns every
// Cluster into its output records, resolves a barcode key for each (via
// matcher, unless the cluster carries a pre-assigned key), and routes the
// records into buf. metrics accumulates this task's private per-barcode
// counts, to be merged into the Scheduler's shared set once the tile
// finishes — see §4.2's concurrent-metrics note.
func processTile(
	ctx context.Context,
	rs readstructure.ReadStructure,
	source ClusterSource,
	buf *tileBuffer,
	matcher *barcode.Matcher,
	metrics *barcode.MetricSet,
	expectedByKey map[string]barcode.ExpectedBarcode,
) (seenKeys map[string]bool, err error) {
	barcodeSegs := rs.Barcodes()
	projection := rs.OutputProjection()
	seenKeys = make(map[string]bool)

	for {
		cluster, ok, nextErr := source.Next(ctx)
		if nextErr != nil {
			return seenKeys, fmt.Errorf("demux: reading cluster: %w", nextErr)
		}
		if !ok {
			return seenKeys, nil
		}

		key, err := resolveBarcodeKey(cluster, barcodeSegs, projection, matcher, metrics, expectedByKey)
		if err != nil {
			return seenKeys, err
		}

		name := BuildReadName(cluster)
		records, err := buildOutputRecords(rs, cluster, name)
		if err != nil {
			return seenKeys, err
		}
		for _, rec := range records {
			if err := buf.add(ctx, key, rec); err != nil {
				return seenKeys, err
			}
		}
		seenKeys[key] = true
	}
}

// resolveBarcodeKey returns cluster's pre-assigned key if present, otherwise
// matches it against matcher and records the metrics side effect. projection
// is rs.OutputProjection(), aligning cluster.Segments (skip-free) back to the
// full-structure indices barcodeSegs reports.
func resolveBarcodeKey(
	cluster Cluster,
	barcodeSegs []readstructure.Indexed,
	projection []readstructure.Indexed,
	matcher *barcode.Matcher,
	metrics *barcode.MetricSet,
	expectedByKey map[string]barcode.ExpectedBarcode,
) (string, error) {
	if cluster.MatchedBarcodeKey != nil {
		return *cluster.MatchedBarcodeKey, nil
	}

	segByIndex := make(map[int]ReadSegment, len(projection))
	for i, p := range projection {
		if i >= len(cluster.Segments) {
			return "", fmt.Errorf("demux: cluster has %d segments, output projection needs %d", len(cluster.Segments), len(projection))
		}
		segByIndex[p.Index] = cluster.Segments[i]
	}

	reads := make([]barcode.Read, 0, len(barcodeSegs))
	for _, seg := range barcodeSegs {
		rs, ok := segByIndex[seg.Index]
		if !ok {
			return "", fmt.Errorf("demux: barcode segment at index %d missing from cluster output projection", seg.Index)
		}
		reads = append(reads, barcode.Read{Bases: rs.Bases, Quals: rs.Quals})
	}

	match := matcher.Match(reads)
	metrics.Record(match, expectedByKey, cluster.PF)

	if !match.Matched {
		return NullKey, nil
	}
	return match.Key, nil
}
