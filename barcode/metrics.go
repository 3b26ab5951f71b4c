package barcode

import (
	"sync"
)

// NoMatchKey is the metrics key used for clusters that did not match any
// ExpectedBarcode.
const NoMatchKey = ""

// Metric accumulates counts for one expected barcode (or the no-match
// bucket, keyed by NoMatchKey in a MetricSet).
type Metric struct {
	Name    string
	Library string

	Reads   int64
	PFReads int64

	PerfectMatches   int64
	PFPerfectMatches int64

	OneMismatchMatches   int64
	PFOneMismatchMatches int64

	// OtherMatches counts matches with 2 or more mismatches (possible when
	// MaxMismatches is configured above 1). Kept separate so
	// Reads == PerfectMatches + OneMismatchMatches + OtherMatches holds for
	// every expected barcode's Metric. The no-match bucket counts only Reads
	// and PFReads; its mismatch-bin counters stay zero.
	OtherMatches   int64
	PFOtherMatches int64
}

// add merges other into m in place.
func (m *Metric) add(other *Metric) {
	m.Reads += other.Reads
	m.PFReads += other.PFReads
	m.PerfectMatches += other.PerfectMatches
	m.PFPerfectMatches += other.PFPerfectMatches
	m.OneMismatchMatches += other.OneMismatchMatches
	m.PFOneMismatchMatches += other.PFOneMismatchMatches
	m.OtherMatches += other.OtherMatches
	m.PFOtherMatches += other.PFOtherMatches
}

// MetricSet collects Metric values keyed by barcode key, plus the no-match
// bucket. Only Merge is safe for concurrent use (it takes the receiving
// set's own lock); each reader task owns a private MetricSet and Merge()s it
// into a shared one, mirroring markduplicates.MetricsCollection.
type MetricSet struct {
	byKey map[string]*Metric
	order []string
	mu    sync.Mutex
}

// NewMetricSet creates an empty MetricSet.
func NewMetricSet() *MetricSet {
	return &MetricSet{byKey: map[string]*Metric{}}
}

// Get returns the Metric for key, creating it (with the given name/library)
// if absent.
func (s *MetricSet) Get(key, name, library string) *Metric {
	m, ok := s.byKey[key]
	if ok {
		return m
	}
	m = &Metric{Name: name, Library: library}
	s.byKey[key] = m
	s.order = append(s.order, key)
	return m
}

// Record applies the side effect of one Matcher.Match call to s: exactly one
// metric's Reads (and, if pf, PFReads) is incremented, plus the appropriate
// mismatch-bin counter when the cluster matched.
func (s *MetricSet) Record(match Match, expectedByKey map[string]ExpectedBarcode, pf bool) {
	key := match.Key
	name, library := "", ""
	if match.Matched {
		if eb, ok := expectedByKey[key]; ok {
			name, library = eb.Name, eb.Library
		}
	} else {
		key = NoMatchKey
	}
	m := s.Get(key, name, library)
	m.Reads++
	if pf {
		m.PFReads++
	}
	if !match.Matched {
		return
	}
	switch match.Mismatches {
	case 0:
		m.PerfectMatches++
		if pf {
			m.PFPerfectMatches++
		}
	case 1:
		m.OneMismatchMatches++
		if pf {
			m.PFOneMismatchMatches++
		}
	default:
		m.OtherMatches++
		if pf {
			m.PFOtherMatches++
		}
	}
}

// Merge adds other's counts into s under s's lock. Intended for combining
// one reader task's private MetricSet into the Scheduler's shared one.
func (s *MetricSet) Merge(other *MetricSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range other.order {
		om := other.byKey[key]
		m, ok := s.byKey[key]
		if !ok {
			copied := *om
			s.byKey[key] = &copied
			s.order = append(s.order, key)
			continue
		}
		m.add(om)
	}
}

// Keys returns the registered metric keys in first-seen order.
func (s *MetricSet) Keys() []string {
	return append([]string(nil), s.order...)
}

// Metric looks up a previously recorded metric by key.
func (s *MetricSet) Metric(key string) (*Metric, bool) {
	m, ok := s.byKey[key]
	return m, ok
}
