package extsort

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/file"
)

// runWriter appends Entries to a sorted run file using a simple
// length-prefixed framing: uint32 key length, key bytes, uint32 value
// length, value bytes. Runs never need random access or block indexing the
// way sortshard's BAM-specific format does, so the framing is kept minimal.
type runWriter struct {
	w      io.Writer
	scratch [4]byte
}

func newRunWriter(w io.Writer) *runWriter {
	return &runWriter{w: w}
}

func (w *runWriter) write(e Entry) error {
	if err := w.writeChunk([]byte(e.Key)); err != nil {
		return err
	}
	return w.writeChunk(e.Value)
}

func (w *runWriter) writeChunk(b []byte) error {
	binary.LittleEndian.PutUint32(w.scratch[:], uint32(len(b)))
	if _, err := w.w.Write(w.scratch[:]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.w.Write(b)
	return err
}

// runReader reads back entries written by runWriter, or iterates a
// preloaded in-memory slice (see newMemoryRunReader). It exposes the
// scan/entry/err/close idiom that sortShardReader uses so Iterator can treat
// disk-backed and in-memory runs identically.
type runReader struct {
	path  string
	file  file.File
	r     io.Reader
	mem   []Entry
	memPos int

	entry    Entry
	scanErr  error
	finished bool
}

func newRunReader(ctx context.Context, path string, f file.File) *runReader {
	return &runReader{path: path, file: f, r: f.Reader(ctx)}
}

func newMemoryRunReader(sorted []Entry) *runReader {
	return &runReader{mem: sorted}
}

// scan advances to the next entry, returning false at EOF or error.
func (r *runReader) scan() bool {
	if r.finished {
		return false
	}
	if r.mem != nil {
		if r.memPos >= len(r.mem) {
			r.finished = true
			return false
		}
		r.entry = r.mem[r.memPos]
		r.memPos++
		return true
	}
	key, err := r.readChunk()
	if err != nil {
		if err != io.EOF {
			r.scanErr = err
		}
		r.finished = true
		return false
	}
	value, err := r.readChunk()
	if err != nil {
		r.scanErr = err
		r.finished = true
		return false
	}
	r.entry = Entry{Key: string(key), Value: value}
	return true
}

func (r *runReader) readChunk() ([]byte, error) {
	var szBuf [4]byte
	if _, err := io.ReadFull(r.r, szBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(szBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *runReader) err() error { return r.scanErr }

func (r *runReader) close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	return r.file.Close(ctx)
}
