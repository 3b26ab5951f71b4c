package barcode

import (
	"io"
	"sort"

	"github.com/grailbio/base/tsv"
)

// metricTsvRow is one row of the barcode metrics report. Field order follows
// the struct tag order, matching basestrand.tsv's convention of driving
// column order from struct layout rather than an explicit header slice.
type metricTsvRow struct {
	BarcodeKey string  `tsv:"BARCODE"`
	Name       string  `tsv:"SAMPLE_ALIAS"`
	Library    string  `tsv:"LIBRARY_NAME"`
	Reads      int64   `tsv:"READS"`
	PFReads    int64   `tsv:"PF_READS"`
	Perfect    int64   `tsv:"PERFECT_MATCHES"`
	PFPerfect  int64   `tsv:"PF_PERFECT_MATCHES"`
	OneMM      int64   `tsv:"ONE_MISMATCH_MATCHES"`
	PFOneMM    int64   `tsv:"PF_ONE_MISMATCH_MATCHES"`
	Other      int64   `tsv:"OTHER_MATCHES"`
	PFOther    int64   `tsv:"PF_OTHER_MATCHES"`
	PctOfAll   float64 `tsv:"PCT_READS_INCLUDING_NO_MATCH"`
	PctMatched float64 `tsv:"PCT_READS_EXCLUDING_NO_MATCH"`
}

// WriteMetricsTsv writes s as a barcode metrics report. Percentages are
// computed two ways: PCT_READS_INCLUDING_NO_MATCH denominates against every
// read seen (including the no-match bucket), while
// PCT_READS_EXCLUDING_NO_MATCH denominates only against reads that matched
// some expected barcode.
func (s *MetricSet) WriteMetricsTsv(w io.Writer) error {
	var totalReads, matchedReads int64
	keys := s.Keys()
	for _, k := range keys {
		m, _ := s.Metric(k)
		totalReads += m.Reads
		if k != NoMatchKey {
			matchedReads += m.Reads
		}
	}

	sorted := append([]string(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i] == NoMatchKey {
			return false
		}
		if sorted[j] == NoMatchKey {
			return true
		}
		return sorted[i] < sorted[j]
	})

	rw := tsv.NewRowWriter(w)
	for _, k := range sorted {
		m, _ := s.Metric(k)
		row := metricTsvRow{
			BarcodeKey: displayKey(k),
			Name:       m.Name,
			Library:    m.Library,
			Reads:      m.Reads,
			PFReads:    m.PFReads,
			Perfect:    m.PerfectMatches,
			PFPerfect:  m.PFPerfectMatches,
			OneMM:      m.OneMismatchMatches,
			PFOneMM:    m.PFOneMismatchMatches,
			Other:      m.OtherMatches,
			PFOther:    m.PFOtherMatches,
		}
		if totalReads > 0 {
			row.PctOfAll = float64(m.Reads) / float64(totalReads)
		}
		if k != NoMatchKey && matchedReads > 0 {
			row.PctMatched = float64(m.Reads) / float64(matchedReads)
		}
		if err := rw.Write(&row); err != nil {
			return err
		}
	}
	return rw.Flush()
}

// displayKey renders the no-match bucket's reserved empty key as the
// sentinel string used in reports; every other key is the barcode key
// unchanged.
func displayKey(key string) string {
	if key == NoMatchKey {
		return "NO_MATCH"
	}
	return key
}
