package barcode

import (
	"fmt"
	"strings"
)

// Match is the result of matching one cluster's barcode reads against a
// Matcher's configured ExpectedBarcodes.
type Match struct {
	// Matched is true iff the cluster was confidently assigned to one
	// ExpectedBarcode.
	Matched bool
	// Key is the canonical barcode key of the assignment. If Matched is
	// false but the best candidate narrowly missed, Key holds that
	// candidate's key in lower case as a hint; otherwise Key is "".
	Key string
	// Mismatches is the mismatch count of the winning (or best candidate,
	// when unmatched with a lower-case hint Key) barcode. When Key is "" it
	// is the total number of barcode read bases.
	Mismatches int
	// MismatchesToSecondBest is the gap between the best and second-best
	// candidate's mismatch counts. It is noSecondBest when fewer than two
	// candidates were compared.
	MismatchesToSecondBest int
}

// noSecondBest marks MismatchesToSecondBest when there is no runner-up
// candidate to compare against (e.g. exactly one ExpectedBarcode configured).
const noSecondBest = 1 << 30

// Matcher assigns clusters to one of a configured set of ExpectedBarcodes.
type Matcher struct {
	expected []ExpectedBarcode
	opts     Options
}

// NewMatcher validates opts and constructs a Matcher over expected. expected
// must be non-empty; barcode-length validation against the read structure's
// Barcode segments is the caller's responsibility (a configuration-time
// concern, not a per-call one).
func NewMatcher(expected []ExpectedBarcode, opts Options) (*Matcher, error) {
	if len(expected) == 0 {
		return nil, fmt.Errorf("barcode: no expected barcodes configured")
	}
	if opts.MaxMismatches < 0 || opts.MinMismatchDelta < 0 || opts.MaxNoCalls < 0 {
		return nil, fmt.Errorf("barcode: negative threshold in Options: %+v", opts)
	}
	return &Matcher{expected: expected, opts: opts}, nil
}

// segmentDistance counts mismatches between one expected barcode segment and
// the corresponding cluster read, per the normative rules: extra bytes on
// either side (when lengths differ) are ignored; a no-call on either side
// is never penalized; a quality below MinBaseQuality counts as a mismatch
// even when the letters agree.
func (m *Matcher) segmentDistance(expected string, read Read) (mismatches, noCalls int) {
	n := len(expected)
	if len(read.Bases) < n {
		n = len(read.Bases)
	}
	for i := 0; i < n; i++ {
		e := expected[i]
		r := read.Bases[i]
		if isNoCall(e) {
			continue
		}
		if isNoCall(r) {
			noCalls++
			continue
		}
		if r != e {
			mismatches++
			continue
		}
		if m.opts.DistanceMode != LenientHamming && m.opts.MinBaseQuality > 0 &&
			read.Quals != nil && i < len(read.Quals) && int(read.Quals[i]) < m.opts.MinBaseQuality {
			mismatches++
		}
	}
	return mismatches, noCalls
}

// candidateDistance returns the total mismatch count between candidate's
// barcode segments and the cluster's barcode reads, plus the total no-calls
// observed across the cluster's barcode reads (the latter is independent of
// which candidate is being scored, but is convenient to compute alongside).
func (m *Matcher) candidateDistance(candidate ExpectedBarcode, reads []Read) (mismatches, noCalls int) {
	for i, seg := range candidate.Segments {
		read := reads[i]
		var segMismatches, segNoCalls int
		switch m.opts.DistanceMode {
		case Free:
			segMismatches = freeDistance(seg, string(read.Bases), "", "", m.opts.MaximalInterestingDistance)
			// No-calls are still accounted for with the Hamming rule: Free
			// mode only changes how indels are tolerated, not no-call policy.
			_, segNoCalls = m.segmentDistance(seg, read)
		default:
			segMismatches, segNoCalls = m.segmentDistance(seg, read)
		}
		mismatches += segMismatches
		noCalls += segNoCalls
	}
	return mismatches, noCalls
}

// Match selects the best-matching ExpectedBarcode for one cluster's barcode
// reads, given reads in the same order as the Matcher's Barcode segments.
func (m *Matcher) Match(reads []Read) Match {
	bestIdx, secondIdx := -1, -1
	best, second := noSecondBest, noSecondBest
	var totalNoCalls int

	for i, candidate := range m.expected {
		mismatches, noCalls := m.candidateDistance(candidate, reads)
		if i == 0 {
			totalNoCalls = noCalls
		}
		if mismatches < best {
			second, secondIdx = best, bestIdx
			best, bestIdx = mismatches, i
		} else if mismatches < second {
			second, secondIdx = mismatches, i
		}
	}
	_ = secondIdx

	totalBases := 0
	for _, r := range reads {
		totalBases += len(r.Bases)
	}

	singleBarcode := len(m.expected) == 1
	delta := second - best
	if secondIdx < 0 {
		delta = noSecondBest
	}

	// With only one expected barcode there is nothing to disambiguate
	// against, so the cluster always assigns to it — even an all-no-call
	// read — unlike the multi-barcode case below, where too many no-calls or
	// mismatches, or too small a gap to the runner-up, forces a no-match.
	matched := true
	if !singleBarcode {
		matched = totalNoCalls <= m.opts.MaxNoCalls && best <= m.opts.MaxMismatches && delta >= m.opts.MinMismatchDelta
	}

	if matched {
		return Match{
			Matched:                true,
			Key:                    m.expected[bestIdx].Key(),
			Mismatches:             best,
			MismatchesToSecondBest: delta,
		}
	}

	if totalNoCalls+best < totalBases && bestIdx >= 0 {
		return Match{
			Matched:                false,
			Key:                    strings.ToLower(m.expected[bestIdx].Key()),
			Mismatches:             best,
			MismatchesToSecondBest: delta,
		}
	}
	return Match{
		Matched:                false,
		Key:                    "",
		Mismatches:             totalBases,
		MismatchesToSecondBest: delta,
	}
}
