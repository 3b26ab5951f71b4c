package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/bcldemux/demux"
)

// textClusterSource reads demux.Clusters from the line-oriented cluster dump
// format: one cluster per line, tab-separated
//
//	x  y  pf  seg1bases  seg1quals  seg2bases  seg2quals  ...
//
// in read structure OutputProjection order. This is not a parser for any
// vendor per-cycle file format (out of scope for the core); it exists so the
// driver has a concrete, inspectable ClusterSource for local runs and tests.
type textClusterSource struct {
	tile    string
	numSegs int
	scanner *bufio.Scanner
	closer  io.Closer
}

func newTextClusterSource(tile string, numSegs int, r io.Reader) *textClusterSource {
	closer, _ := r.(io.Closer)
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1<<20)
	return &textClusterSource{tile: tile, numSegs: numSegs, scanner: s, closer: closer}
}

func (s *textClusterSource) Next(ctx context.Context) (demux.Cluster, bool, error) {
	for {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return demux.Cluster{}, false, fmt.Errorf("clustersource: tile %s: %w", s.tile, err)
			}
			return demux.Cluster{}, false, nil
		}
		line := s.scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		want := 3 + 2*s.numSegs
		if len(fields) != want {
			return demux.Cluster{}, false, fmt.Errorf("clustersource: tile %s: line has %d fields, want %d", s.tile, len(fields), want)
		}
		x, err := strconv.Atoi(fields[0])
		if err != nil {
			return demux.Cluster{}, false, fmt.Errorf("clustersource: tile %s: bad x coordinate %q: %w", s.tile, fields[0], err)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil {
			return demux.Cluster{}, false, fmt.Errorf("clustersource: tile %s: bad y coordinate %q: %w", s.tile, fields[1], err)
		}
		segs := make([]demux.ReadSegment, s.numSegs)
		for i := 0; i < s.numSegs; i++ {
			segs[i] = demux.ReadSegment{
				Bases: []byte(fields[3+2*i]),
				Quals: []byte(fields[4+2*i]),
			}
		}
		return demux.Cluster{
			Tile:     s.tile,
			X:        x,
			Y:        y,
			PF:       fields[2] == "1",
			Segments: segs,
		}, true, nil
	}
}

func (s *textClusterSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
