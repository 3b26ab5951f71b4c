package demux

import (
	"strconv"
	"strings"
)

// BuildReadName builds the comparator key shared by both records of a
// cluster: "<run_barcode>:<lane>:<tile>:<x>:<y>", all numeric fields in
// base 10 without padding. Output ordering within a tile relies entirely on
// lexicographic comparison of this string, so lane/x/y width must stay
// consistent within one run for the order to match read order; the core
// itself only ever compares these strings, never interprets them
// numerically.
func BuildReadName(cluster Cluster) string {
	b := make([]byte, 0, len(cluster.RunBarcode)+len(cluster.Tile)+24)
	b = append(b, cluster.RunBarcode...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(cluster.Lane), 10)
	b = append(b, ':')
	b = append(b, cluster.Tile...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(cluster.X), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(cluster.Y), 10)
	return string(b)
}

// dedupKey returns rec's external-sort comparator key: its read name plus a
// pair-end suffix. Both records of one paired cluster share a Name but have
// different ends, so appending the suffix keeps them from colliding with
// each other while still sorting both "firsts" together and both "seconds"
// together whenever two distinct clusters really do share a read name (a
// vendor coordinate-collision artifact, per §4.3). The suffix only ever
// breaks ties on an identical Name prefix, so it does not disturb the
// overall read-name ordering BuildReadName's comparator relies on.
func dedupKey(rec Record) string {
	end := byte('1')
	if rec.SecondOfPair {
		end = '2'
	}
	return rec.Name + "\x00" + string(end)
}

// TileLess implements the tile-number order used by the Scheduler: this is
// not numeric order. Tile identifiers of equal length compare
// lexicographically. For unequal lengths, if the longer identifier starts
// with the shorter one, the shorter one sorts after the longer one
// (matching how the two would compare once embedded ahead of the ":"
// delimiter in a read name); otherwise the shorter identifier sorts first.
// Exported so callers discovering tile sources (e.g. the driver applying
// --first-tile/--tile-limit) can sort and filter them in the same order the
// Scheduler schedules them.
func TileLess(a, b string) bool {
	if len(a) == len(b) {
		return a < b
	}
	short, long := a, b
	shortIsA := true
	if len(a) > len(b) {
		short, long = b, a
		shortIsA = false
	}
	if strings.HasPrefix(long, short) {
		// short sorts after long.
		return !shortIsA
	}
	// no prefix relationship: shorter sorts first.
	return len(a) < len(b)
}
