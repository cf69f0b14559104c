// Package consortium holds the data model of a consortium DOI report.
package consortium

// Statistics are the DOI counts of an organization or a whole consortium.
//
// PeriodTotals need not add up to AnnualTotal: periods that have not been
// reached yet are reported as zero while the annual total covers the year so
// far.
type Statistics struct {
	CumulativeTotal int
	AnnualTotal     int
	PeriodTotals    map[string]int
}

// NewStatistics returns zeroed statistics with an entry for every period key.
func NewStatistics(periodKeys []string) Statistics {
	totals := make(map[string]int, len(periodKeys))
	for _, k := range periodKeys {
		totals[k] = 0
	}
	return Statistics{PeriodTotals: totals}
}

// Clone returns a deep copy.
func (s Statistics) Clone() Statistics {
	totals := make(map[string]int, len(s.PeriodTotals))
	for k, v := range s.PeriodTotals {
		totals[k] = v
	}
	s.PeriodTotals = totals
	return s
}

// Organization is a consortium member.
type Organization struct {
	ID         string
	Name       string
	Symbol     string
	MemberType string
	Country    string
	Stats      Statistics
}

// Consortium groups the member organizations and their rolled-up totals.
type Consortium struct {
	ID            string
	Organizations []Organization
	Stats         Statistics
}

// IDs returns the organization ids in roster order.
func IDs(orgs []Organization) []string {
	ids := make([]string, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	return ids
}
