package demux

import (
	"encoding/binary"
	"fmt"
)

// encodeRecord serializes rec for storage in an extsort.Collection spill
// file: a single flag byte, then three length-prefixed chunks (name, bases,
// quals).
func encodeRecord(rec Record) []byte {
	size := 1 + 4 + len(rec.Name) + 4 + len(rec.Bases) + 4 + len(rec.Quals)
	buf := make([]byte, 0, size)

	var flags byte
	if rec.FirstOfPair {
		flags |= 1
	}
	if rec.SecondOfPair {
		flags |= 2
	}
	buf = append(buf, flags)
	buf = appendChunk(buf, []byte(rec.Name))
	buf = appendChunk(buf, rec.Bases)
	buf = appendChunk(buf, rec.Quals)
	return buf
}

func appendChunk(buf, chunk []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, chunk...)
}

// decodeRecord is the inverse of encodeRecord.
func decodeRecord(b []byte) (Record, error) {
	if len(b) < 1 {
		return Record{}, fmt.Errorf("demux: record buffer too short: %d bytes", len(b))
	}
	flags := b[0]
	b = b[1:]

	name, b, err := readChunk(b)
	if err != nil {
		return Record{}, err
	}
	bases, b, err := readChunk(b)
	if err != nil {
		return Record{}, err
	}
	quals, _, err := readChunk(b)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Name:         string(name),
		Bases:        bases,
		Quals:        quals,
		FirstOfPair:  flags&1 != 0,
		SecondOfPair: flags&2 != 0,
	}, nil
}

func readChunk(b []byte) (chunk, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("demux: truncated record chunk length")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("demux: truncated record chunk data")
	}
	chunk = b[:n]
	if n == 0 {
		chunk = nil
	}
	return chunk, b[n:], nil
}
