package readstructure

import (
	"fmt"
	"strings"
)

// ErrorKind classifies why a read structure string failed to parse.
type ErrorKind int

const (
	// Malformed means the string did not match the <len><kind> grammar.
	Malformed ErrorKind = iota
	// ZeroLength means a segment declared a length of zero.
	ZeroLength
	// NoTemplate means the structure has no Template segment.
	NoTemplate
	// TooManyTemplates means the structure has more than two Template segments.
	TooManyTemplates
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case ZeroLength:
		return "zero-length segment"
	case NoTemplate:
		return "no template segment"
	case TooManyTemplates:
		return "too many template segments"
	default:
		return "unknown"
	}
}

// ParseError reports why Parse rejected a read structure string.
type ParseError struct {
	Kind  ErrorKind
	Input string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("read structure %q: %s: %s", e.Input, e.Kind, e.Msg)
}

// Indexed pairs a segment with its position in the structure.
type Indexed struct {
	Index   int
	Segment Segment
}

// ReadStructure is the parsed, validated cycle layout of a run.
type ReadStructure struct {
	Segments []Segment
}

// Parse parses a read structure string of the form "<len><kind>..." where
// kind is one of T (Template), B (Barcode), M (MolecularBarcode), or
// S (Skip). Leading zeroes in a length are accepted; whitespace anywhere in
// the string is rejected.
//
// Parse enforces that the result has at least one Template segment and at
// most two (spec: downstream record shape assumes <= 2 templates per
// cluster).
func Parse(s string) (ReadStructure, error) {
	if s == "" {
		return ReadStructure{}, &ParseError{Malformed, s, "empty string"}
	}
	var segs []Segment
	i := 0
	for i < len(s) {
		if s[i] < '0' || s[i] > '9' {
			return ReadStructure{}, &ParseError{Malformed, s, fmt.Sprintf("expected digit at offset %d", i)}
		}
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i >= len(s) {
			return ReadStructure{}, &ParseError{Malformed, s, "length not followed by a kind letter"}
		}
		length := 0
		for _, c := range s[start:i] {
			length = length*10 + int(c-'0')
		}
		kind, ok := kindFromByte(s[i])
		if !ok {
			return ReadStructure{}, &ParseError{Malformed, s, fmt.Sprintf("unknown segment kind %q at offset %d", s[i], i)}
		}
		i++
		if length <= 0 {
			return ReadStructure{}, &ParseError{ZeroLength, s, fmt.Sprintf("segment %d%s has non-positive length", length, kind)}
		}
		segs = append(segs, Segment{Length: length, Kind: kind})
	}
	rs := ReadStructure{Segments: segs}
	nTemplate := len(rs.Templates())
	if nTemplate == 0 {
		return ReadStructure{}, &ParseError{NoTemplate, s, "at least one Template segment is required"}
	}
	if nTemplate > 2 {
		return ReadStructure{}, &ParseError{TooManyTemplates, s, "at most two Template segments are supported"}
	}
	return rs, nil
}

// String renders the read structure back into its canonical grammar.
func (rs ReadStructure) String() string {
	b := strings.Builder{}
	for _, s := range rs.Segments {
		b.WriteString(s.String())
	}
	return b.String()
}

func (rs ReadStructure) indexedByKind(k Kind) []Indexed {
	var out []Indexed
	for i, s := range rs.Segments {
		if s.Kind == k {
			out = append(out, Indexed{Index: i, Segment: s})
		}
	}
	return out
}

// Barcodes returns the ordered list of Barcode segments with their index in
// Segments.
func (rs ReadStructure) Barcodes() []Indexed { return rs.indexedByKind(Barcode) }

// Templates returns the ordered list of Template segments with their index
// in Segments.
func (rs ReadStructure) Templates() []Indexed { return rs.indexedByKind(Template) }

// MolecularBarcodes returns the ordered list of MolecularBarcode segments.
func (rs ReadStructure) MolecularBarcodes() []Indexed { return rs.indexedByKind(MolecularBarcode) }

// OutputProjection returns the segments of rs with Skip segments removed,
// preserving order. This is the shape used to build output records from a
// cluster's non-skip ReadSegments.
func (rs ReadStructure) OutputProjection() []Indexed {
	var out []Indexed
	for i, s := range rs.Segments {
		if s.Kind != Skip {
			out = append(out, Indexed{Index: i, Segment: s})
		}
	}
	return out
}

// NumRecordsPerCluster is the number of output records (1 or 2) each
// cluster yields, equal to the number of Template segments.
func (rs ReadStructure) NumRecordsPerCluster() int {
	return len(rs.Templates())
}
