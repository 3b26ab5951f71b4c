package barcode

import "strings"

// ExpectedBarcode is one configured multi-barcode sample assignment: one
// barcode string per Barcode segment of the run's read structure, plus the
// human-readable sample and library names carried through to output.
type ExpectedBarcode struct {
	// Segments holds one barcode string per Barcode segment, in read
	// structure segment order.
	Segments []string
	// Name is the human-readable sample alias.
	Name string
	// Library is the library name.
	Library string
}

// Key returns the canonical barcode key: the concatenation of Segments in
// order. Keys are expected to be unique within one Matcher's configuration.
func (e ExpectedBarcode) Key() string {
	return strings.Join(e.Segments, "")
}

// IsAllNoCalls reports whether every base of every segment is a no-call
// sentinel. Such an ExpectedBarcode is the reserved "no match" placeholder
// and is never registered with a Matcher directly (see sample.LoadSheet).
func (e ExpectedBarcode) IsAllNoCalls() bool {
	for _, seg := range e.Segments {
		for i := 0; i < len(seg); i++ {
			if !isNoCall(seg[i]) {
				return false
			}
		}
	}
	return true
}
