package fastqio

import (
	"bufio"
	"compress/gzip"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailbio/bcldemux/demux"
)

// readFastqRecords parses path's four-line FASTQ records, returning each
// record's ID and sequence line. Used only to verify sink output round-trips;
// production FASTQ writing lives in encoding/fastq.Writer.
func readFastqRecords(t *testing.T, path string) (ids, seqs []string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ids = append(ids, sc.Text())
		require.True(t, sc.Scan(), "truncated FASTQ record in %s", path)
		seqs = append(seqs, sc.Text())
		require.True(t, sc.Scan(), "truncated FASTQ record in %s", path)
		require.True(t, sc.Scan(), "truncated FASTQ record in %s", path)
	}
	require.NoError(t, sc.Err())
	return ids, seqs
}

func TestFastqSinkSingleEnd(t *testing.T) {
	dir, err := ioutil.TempDir("", "fastqio")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	path := filepath.Join(dir, "s1.fastq")
	sink, err := NewFastqSink(ctx, path, "")
	require.NoError(t, err)

	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r1", Bases: []byte("ACGT"), Quals: []byte("IIII"), FirstOfPair: true}))
	require.NoError(t, sink.Close(ctx))

	got, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "@r1\nACGT\n+\nIIII\n", string(got))
}

func TestFastqSinkPaired(t *testing.T) {
	dir, err := ioutil.TempDir("", "fastqio")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	r1Path := filepath.Join(dir, "s1_R1.fastq")
	r2Path := filepath.Join(dir, "s1_R2.fastq")
	sink, err := NewFastqSink(ctx, r1Path, r2Path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r1", Bases: []byte("AAAA"), Quals: []byte("IIII"), FirstOfPair: true}))
	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r1", Bases: []byte("TTTT"), Quals: []byte("JJJJ"), SecondOfPair: true}))
	require.NoError(t, sink.Close(ctx))

	r1, err := ioutil.ReadFile(r1Path)
	require.NoError(t, err)
	assert.Equal(t, "@r1\nAAAA\n+\nIIII\n", string(r1))
	r2, err := ioutil.ReadFile(r2Path)
	require.NoError(t, err)
	assert.Equal(t, "@r1\nTTTT\n+\nJJJJ\n", string(r2))
}

func TestFastqSinkRejectsSecondOfPairWithoutR2(t *testing.T) {
	dir, err := ioutil.TempDir("", "fastqio")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	sink, err := NewFastqSink(ctx, filepath.Join(dir, "s1.fastq"), "")
	require.NoError(t, err)
	defer sink.Close(ctx)

	err = sink.Write(ctx, demux.Record{Name: "r1", SecondOfPair: true})
	assert.Error(t, err)
}

func TestFastqSinkPairedScansBackAsReads(t *testing.T) {
	dir, err := ioutil.TempDir("", "fastqio")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	r1Path := filepath.Join(dir, "s1_R1.fastq")
	r2Path := filepath.Join(dir, "s1_R2.fastq")
	sink, err := NewFastqSink(ctx, r1Path, r2Path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r1", Bases: []byte("AAAA"), Quals: []byte("IIII"), FirstOfPair: true}))
	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r1", Bases: []byte("TTTT"), Quals: []byte("JJJJ"), SecondOfPair: true}))
	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r2", Bases: []byte("CCCC"), Quals: []byte("KKKK"), FirstOfPair: true}))
	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r2", Bases: []byte("GGGG"), Quals: []byte("LLLL"), SecondOfPair: true}))
	require.NoError(t, sink.Close(ctx))

	r1IDs, r1Seqs := readFastqRecords(t, r1Path)
	r2IDs, r2Seqs := readFastqRecords(t, r2Path)
	assert.Equal(t, []string{"@r1", "@r2"}, r1IDs)
	assert.Equal(t, []string{"AAAA", "CCCC"}, r1Seqs)
	assert.Equal(t, []string{"@r1", "@r2"}, r2IDs)
	assert.Equal(t, []string{"TTTT", "GGGG"}, r2Seqs)
}

func TestFastqSinkGzip(t *testing.T) {
	dir, err := ioutil.TempDir("", "fastqio")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	ctx := context.Background()
	path := filepath.Join(dir, "s1.fastq.gz")
	sink, err := NewFastqSink(ctx, path, "")
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, demux.Record{Name: "r1", Bases: []byte("ACGT"), Quals: []byte("IIII"), FirstOfPair: true}))
	require.NoError(t, sink.Close(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()
	got, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "@r1\nACGT\n+\nIIII\n", string(got))
}
