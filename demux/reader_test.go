package demux

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bcldemux/barcode"
	"github.com/grailbio/bcldemux/readstructure"
)

// sliceSource is a ClusterSource over a fixed, in-memory slice of Clusters.
type sliceSource struct {
	clusters []Cluster
	pos      int
}

func (s *sliceSource) Next(ctx context.Context) (Cluster, bool, error) {
	if s.pos >= len(s.clusters) {
		return Cluster{}, false, nil
	}
	c := s.clusters[s.pos]
	s.pos++
	return c, true, nil
}

func cluster(tile string, x, y int, barcodeBases string) Cluster {
	return Cluster{
		Lane:       1,
		Tile:       tile,
		X:          x,
		Y:          y,
		PF:         true,
		RunBarcode: "run",
		Segments: []ReadSegment{
			{Bases: []byte(barcodeBases)},
			{Bases: []byte("ACGTACGTAC")},
		},
	}
}

func newTestMatcher(t *testing.T) *barcode.Matcher {
	t.Helper()
	// Two far-apart candidates, so an unrelated read genuinely fails to
	// match instead of being forced through by the single-barcode rule.
	m, err := barcode.NewMatcher([]barcode.ExpectedBarcode{
		{Segments: []string{"ACGTACGT"}, Name: "s1"},
		{Segments: []string{"GGGGGGGG"}, Name: "s2"},
	}, barcode.DefaultOptions())
	require.NoError(t, err)
	return m
}

func TestProcessTileRoutesMatchedAndUnmatchedClusters(t *testing.T) {
	rs, err := readstructure.Parse("8B10T")
	require.NoError(t, err)
	matcher := newTestMatcher(t)
	expectedByKey := map[string]barcode.ExpectedBarcode{
		"ACGTACGT": {Segments: []string{"ACGTACGT"}, Name: "s1"},
	}

	source := &sliceSource{clusters: []Cluster{
		cluster("1101", 1, 1, "ACGTACGT"),
		cluster("1101", 2, 2, "TTTTTTTT"),
	}}
	tb, cleanup := newTestTileBuffer(t, []string{"ACGTACGT", NullKey})
	defer cleanup()
	metrics := barcode.NewMetricSet()

	seen, err := processTile(context.Background(), rs, source, tb, matcher, metrics, expectedByKey)
	require.NoError(t, err)
	assert.True(t, seen["ACGTACGT"])
	assert.True(t, seen[NullKey])

	m, ok := metrics.Metric("ACGTACGT")
	require.True(t, ok)
	assert.EqualValues(t, 1, m.Reads)
	assert.EqualValues(t, 1, m.PerfectMatches)

	noMatch, ok := metrics.Metric(barcode.NoMatchKey)
	require.True(t, ok)
	assert.EqualValues(t, 1, noMatch.Reads)
}

func TestProcessTileHonorsPreAssignedKey(t *testing.T) {
	rs, err := readstructure.Parse("8B10T")
	require.NoError(t, err)
	matcher := newTestMatcher(t)

	key := "preassigned"
	c := cluster("1101", 1, 1, "ZZZZZZZZ") // would never match via the matcher.
	c.MatchedBarcodeKey = &key

	source := &sliceSource{clusters: []Cluster{c}}
	tb, cleanup := newTestTileBuffer(t, []string{"preassigned"})
	defer cleanup()
	metrics := barcode.NewMetricSet()

	seen, err := processTile(context.Background(), rs, source, tb, matcher, metrics, nil)
	require.NoError(t, err)
	assert.True(t, seen["preassigned"])

	it, err := tb.finalizeKey(context.Background(), "preassigned")
	require.NoError(t, err)
	require.True(t, it.Next())
	assert.Equal(t, "run:1:1101:1:1", it.Record().Name)
}
