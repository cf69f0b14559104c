package stats

import (
	"github.com/Sternrassler/consortium-doi-report/pkg/consortium"
)

// Rollup sums organization statistics into consortium totals. The result has
// an entry for every key in periodKeys.
func Rollup(orgs []consortium.Organization, periodKeys []string) consortium.Statistics {
	total := consortium.NewStatistics(periodKeys)

	for _, o := range orgs {
		for _, k := range periodKeys {
			total.PeriodTotals[k] += o.Stats.PeriodTotals[k]
		}
		total.AnnualTotal += o.Stats.AnnualTotal
		total.CumulativeTotal += o.Stats.CumulativeTotal
	}

	return total
}

// Build assembles a consortium from aggregated organizations.
func Build(id string, orgs []consortium.Organization, periodKeys []string) consortium.Consortium {
	return consortium.Consortium{
		ID:            id,
		Organizations: orgs,
		Stats:         Rollup(orgs, periodKeys),
	}
}
