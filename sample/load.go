// Package sample loads the expected-barcodes table that configures a run's
// Barcode Matcher and Sink Registry: either an inline single-barcode list, or
// a tabular, column-named sheet with arbitrary per-output tag columns.
package sample

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/traverse"

	"github.com/grailbio/bcldemux/barcode"
)

const (
	colOutput        = "OUTPUT"
	colSampleAlias   = "SAMPLE_ALIAS"
	colLibraryName   = "LIBRARY_NAME"
	colBarcodeAlone  = "BARCODE"
	barcodeColPrefix = "BARCODE_"
)

// reservedTags are output header tag names the sheet format forbids,
// because they collide with fields the driver fills in itself.
var reservedTags = map[string]bool{"PU": true, "CN": true, "PL": true, "DT": true}

// Entry is one row of a loaded expected-barcode table.
type Entry struct {
	// Output is the sink/output identifier, used to name the sink's
	// destination (e.g. a file path template).
	Output string
	// Expected is this row's barcode configuration, ready to pass to
	// barcode.NewMatcher (after excluding any NoMatch entry).
	Expected barcode.ExpectedBarcode
	// Tags holds the sheet's arbitrary two-letter tag columns, keyed by
	// column name. Nothing in this module writes them to a sink's output.
	Tags map[string]string
	// NoMatch is true if this row defines the no-match sink: it registers
	// under barcode.NoMatchKey instead of Expected.Key().
	NoMatch bool
}

// Key returns the sink key this entry registers under.
func (e Entry) Key() string {
	if e.NoMatch {
		return barcode.NoMatchKey
	}
	return e.Expected.Key()
}

// LoadInline builds one Entry per barcode string, using the barcode itself
// as both Output and sample alias. It applies only when the run's read
// structure has exactly one Barcode segment; validating that is the caller's
// responsibility since LoadInline has no access to the read structure.
func LoadInline(barcodes []string) ([]Entry, error) {
	if len(barcodes) == 0 {
		return nil, fmt.Errorf("sample: inline barcode list is empty")
	}
	seen := make(map[string]bool, len(barcodes))
	entries := make([]Entry, 0, len(barcodes))
	for _, b := range barcodes {
		if seen[b] {
			return nil, fmt.Errorf("sample: duplicate inline barcode %q", b)
		}
		seen[b] = true
		entries = append(entries, Entry{
			Output:   b,
			Expected: barcode.ExpectedBarcode{Segments: []string{b}, Name: b},
			Tags:     map[string]string{},
		})
	}
	if err := validateBases(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadSheet loads the tabular, column-named expected-barcode sheet from r.
// The header row's column names determine the barcode-segment count (either
// a lone BARCODE column, or BARCODE_1..BARCODE_K) and which extra columns
// are collected into Entry.Tags; tag columns named PU, CN, PL, or DT are
// rejected. LoadSheet parses the header and data rows directly (plain
// tab-splitting) rather than through a fixed-schema tsv.Reader, since the
// column set — K barcode columns, plus however many tag columns a given
// sheet declares — is only known once the header line has been read.
func LoadSheet(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("sample: reading header: %w", err)
		}
		return nil, fmt.Errorf("sample: empty sheet")
	}
	header := strings.Split(scanner.Text(), "\t")
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	keysSeen := make(map[string]bool)
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("sample: line %d: %d fields, want %d", lineNo, len(fields), len(header))
		}

		segments := make([]string, len(cols.barcodeIdx))
		for i, idx := range cols.barcodeIdx {
			segments[i] = fields[idx]
		}
		eb := barcode.ExpectedBarcode{
			Segments: segments,
			Name:     fields[cols.sampleAliasIdx],
			Library:  fields[cols.libraryNameIdx],
		}
		tags := make(map[string]string, len(cols.tagIdx))
		for name, idx := range cols.tagIdx {
			tags[name] = fields[idx]
		}

		entry := Entry{
			Output:   fields[cols.outputIdx],
			Expected: eb,
			Tags:     tags,
			NoMatch:  eb.IsAllNoCalls(),
		}
		key := entry.Key()
		if keysSeen[key] {
			return nil, fmt.Errorf("sample: line %d: duplicate barcode key %q", lineNo, key)
		}
		keysSeen[key] = true
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sample: reading sheet: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("sample: sheet has no data rows")
	}
	if err := validateBases(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// validateBases checks every entry's barcode segments for stray characters in
// parallel, the way pileup.go fans out per-column work across a row set with
// traverse.Each; a sheet can carry thousands of rows and each row's check is
// independent.
func validateBases(entries []Entry) error {
	return traverse.Each(len(entries), func(i int) error {
		for _, seg := range entries[i].Expected.Segments {
			for j := 0; j < len(seg); j++ {
				b := seg[j]
				switch b {
				case 'A', 'C', 'G', 'T', 'N', '.':
				default:
					return fmt.Errorf("sample: entry %q: invalid base %q in barcode segment %q", entries[i].Output, b, seg)
				}
			}
		}
		return nil
	})
}

// columns is the header-derived layout of a sheet's fixed and variable
// columns.
type columns struct {
	outputIdx      int
	sampleAliasIdx int
	libraryNameIdx int
	barcodeIdx     []int
	tagIdx         map[string]int
}

func parseHeader(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, dup := index[name]; dup {
			return columns{}, fmt.Errorf("sample: duplicate column %q in header", name)
		}
		index[name] = i
	}

	cols := columns{tagIdx: map[string]int{}}
	var ok bool
	if cols.outputIdx, ok = index[colOutput]; !ok {
		return columns{}, fmt.Errorf("sample: header missing required column %q", colOutput)
	}
	if cols.sampleAliasIdx, ok = index[colSampleAlias]; !ok {
		return columns{}, fmt.Errorf("sample: header missing required column %q", colSampleAlias)
	}
	if cols.libraryNameIdx, ok = index[colLibraryName]; !ok {
		return columns{}, fmt.Errorf("sample: header missing required column %q", colLibraryName)
	}

	if idx, ok := index[colBarcodeAlone]; ok {
		cols.barcodeIdx = []int{idx}
	} else {
		for k := 1; ; k++ {
			name := fmt.Sprintf("%s%d", barcodeColPrefix, k)
			idx, ok := index[name]
			if !ok {
				break
			}
			cols.barcodeIdx = append(cols.barcodeIdx, idx)
		}
	}
	if len(cols.barcodeIdx) == 0 {
		return columns{}, fmt.Errorf("sample: header has no %s or %s1.. columns", colBarcodeAlone, barcodeColPrefix)
	}

	known := map[string]bool{
		colOutput: true, colSampleAlias: true, colLibraryName: true,
	}
	for _, idx := range cols.barcodeIdx {
		known[header[idx]] = true
	}
	for name, idx := range index {
		if known[name] {
			continue
		}
		if len(name) != 2 {
			continue // non-tag extra column: ignored, not an error.
		}
		if reservedTags[strings.ToUpper(name)] {
			return columns{}, fmt.Errorf("sample: header column %q uses a reserved tag name", name)
		}
		cols.tagIdx[name] = idx
	}
	return cols, nil
}
