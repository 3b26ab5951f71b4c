// Package fastqio adapts demux.RecordSink to FASTQ files on disk, reusing
// the read/write shape of encoding/fastq and grailbio/base/file so sinks can
// target a local path or any file-registered scheme. Output is gzip
// compressed when the path ends in ".gz", using klauspost/compress/gzip in
// place of the standard library package, the same substitution
// interval/bedunion.go and pileup/common.go make on the read side.
package fastqio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/base/file"

	"github.com/grailbio/bcldemux/demux"
	"github.com/grailbio/bcldemux/encoding/fastq"
)

// fastqFile is one opened output FASTQ file, optionally gzip-wrapped.
type fastqFile struct {
	f      file.File
	gz     *gzip.Writer
	writer *fastq.Writer
}

func newFastqFile(ctx context.Context, path string) (*fastqFile, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fastqio: creating %s: %w", path, err)
	}
	var w io.Writer = f.Writer(ctx)
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(w)
		w = gz
	}
	return &fastqFile{f: f, gz: gz, writer: fastq.NewWriter(w)}, nil
}

func (ff *fastqFile) write(rec demux.Record) error {
	return ff.writer.Write(&fastq.Read{
		ID:   "@" + rec.Name,
		Seq:  string(rec.Bases),
		Unk:  "+",
		Qual: string(rec.Quals),
	})
}

func (ff *fastqFile) close(ctx context.Context) error {
	var err error
	if ff.gz != nil {
		err = ff.gz.Close()
	}
	if cerr := ff.f.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// FastqSink writes one barcode key's records to one or two FASTQ files (read
// 1, and read 2 when the run's read structure has a second template
// segment), implementing demux.RecordSink.
type FastqSink struct {
	r1 *fastqFile
	r2 *fastqFile
}

// NewFastqSink creates r1Path (and r2Path, if non-empty) for writing. Each
// path's ".gz" suffix, if present, selects gzip compression.
func NewFastqSink(ctx context.Context, r1Path, r2Path string) (*FastqSink, error) {
	r1, err := newFastqFile(ctx, r1Path)
	if err != nil {
		return nil, err
	}
	s := &FastqSink{r1: r1}
	if r2Path != "" {
		r2, err := newFastqFile(ctx, r2Path)
		if err != nil {
			_ = r1.close(ctx)
			return nil, err
		}
		s.r2 = r2
	}
	return s, nil
}

// Write implements demux.RecordSink.
func (s *FastqSink) Write(ctx context.Context, rec demux.Record) error {
	if rec.SecondOfPair {
		if s.r2 == nil {
			return fmt.Errorf("fastqio: second-of-pair record %q but no read-2 file configured", rec.Name)
		}
		return s.r2.write(rec)
	}
	return s.r1.write(rec)
}

// Close implements demux.RecordSink.
func (s *FastqSink) Close(ctx context.Context) error {
	err := s.r1.close(ctx)
	if s.r2 != nil {
		if err2 := s.r2.close(ctx); err == nil {
			err = err2
		}
	}
	return err
}
