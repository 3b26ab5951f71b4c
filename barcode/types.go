// Package barcode implements the per-cluster barcode matcher: given the
// barcode-segment reads of one cluster, decide which configured expected
// barcode (if any) it belongs to, and tally per-barcode metrics.
package barcode

// NoCall is the canonical sentinel base meaning the instrument could not
// resolve a cycle's signal. Input may also spell this '.', historically.
const NoCall = 'N'

// Read is the sequence and (optional) quality of one barcode segment read
// out of a cluster.
type Read struct {
	Bases []byte
	// Quals holds one Phred-like quality value per base in Bases, or is nil
	// if qualities are unavailable.
	Quals []byte
}

func isNoCall(b byte) bool { return b == 'N' || b == '.' }
