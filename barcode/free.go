package barcode

import "github.com/grailbio/bcldemux/util"

// freeDistance computes the bounded edit distance used by the Free
// DistanceMode. It delegates to util.Levenshtein, which already tolerates a
// single leading/trailing indel by consulting the bases immediately
// downstream of the compared barcodes (the same technique umi.SnapCorrector
// uses for UMI correction). The result is capped at bound+1 since the
// matcher only needs to know that a candidate exceeds the interesting
// range, not its exact distance beyond that point.
func freeDistance(expected, read, downstreamExpected, downstreamRead string, bound int) int {
	if len(expected) != len(read) {
		// util.Levenshtein requires equal-length primary strings; trim the
		// longer one into its own downstream sequence so the indel-tolerant
		// comparison still applies.
		if len(expected) > len(read) {
			extra := expected[len(read):]
			expected = expected[:len(read)]
			downstreamExpected = extra + downstreamExpected
		} else {
			extra := read[len(expected):]
			read = read[:len(expected)]
			downstreamRead = extra + downstreamRead
		}
	}
	d := util.Levenshtein(expected, read, downstreamExpected, downstreamRead)
	if d > bound+1 {
		return bound + 1
	}
	return d
}
