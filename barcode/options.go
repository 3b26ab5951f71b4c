package barcode

import "fmt"

// DistanceMode selects the function used to count mismatches between a
// read's barcode bases and an expected barcode.
type DistanceMode int

const (
	// Hamming counts each aligned position whose bases differ, or whose
	// quality is below MinBaseQuality. Read no-calls are not mismatches;
	// they are tallied separately against MaxNoCalls.
	Hamming DistanceMode = iota
	// LenientHamming is Hamming but ignores base quality.
	LenientHamming
	// Free is a bounded edit distance tolerating one leading/trailing indel.
	Free
)

func (m DistanceMode) String() string {
	switch m {
	case Hamming:
		return "hamming"
	case LenientHamming:
		return "lenient_hamming"
	case Free:
		return "free"
	default:
		return fmt.Sprintf("DistanceMode(%d)", int(m))
	}
}

// ParseDistanceMode parses the distance_mode configuration string.
func ParseDistanceMode(s string) (DistanceMode, error) {
	switch s {
	case "", "hamming":
		return Hamming, nil
	case "lenient_hamming":
		return LenientHamming, nil
	case "free":
		return Free, nil
	default:
		return 0, fmt.Errorf("unknown distance_mode %q", s)
	}
}

// Options configures a Matcher. The zero value is not valid; use
// DefaultOptions and override individual fields.
type Options struct {
	// MaxMismatches is the upper bound on mismatches (summed across all
	// Barcode segments) allowed in the selected expected barcode.
	MaxMismatches int
	// MinMismatchDelta is the minimum gap required between the best and
	// second-best expected barcode's mismatch counts.
	MinMismatchDelta int
	// MaxNoCalls is the upper bound on no-call bases summed across the
	// cluster's barcode segments.
	MaxNoCalls int
	// MinBaseQuality, if > 0, causes bases below this quality to count as a
	// mismatch even when the letters agree. Zero disables quality-based
	// penalties.
	MinBaseQuality int
	// DistanceMode selects the mismatch-counting function.
	DistanceMode DistanceMode
	// MaximalInterestingDistance bounds the cost computed by Free mode; any
	// edit distance beyond this value is reported as
	// MaximalInterestingDistance+1. Ignored by the other modes.
	MaximalInterestingDistance int
}

// DefaultOptions returns the documented default Matcher configuration.
func DefaultOptions() Options {
	return Options{
		MaxMismatches:              1,
		MinMismatchDelta:           1,
		MaxNoCalls:                 2,
		MinBaseQuality:             0,
		DistanceMode:               Hamming,
		MaximalInterestingDistance: 2,
	}
}
