// Package stats collects per-organization DOI counts from DataCite facets and
// rolls them up into consortium totals.
package stats

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/consortium"
	"github.com/Sternrassler/consortium-doi-report/pkg/logging"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// Endpoint is the DataCite DOI list endpoint.
	Endpoint = "dois"

	// MaxFacetValues is the number of provider facet values DataCite
	// returns per query. A batch must not hold more organizations.
	MaxFacetValues = 10
)

// Getter is the part of the API client the aggregator needs.
type Getter interface {
	Get(ctx context.Context, endpoint, id string, query url.Values) (*client.Document, error)
}

// ProgressFunc is called before each batch is queried. batch is 1-based.
type ProgressFunc func(batch, total int, ids []string)

// Config holds aggregator configuration.
type Config struct {
	// BatchSize is the number of organizations per facet query,
	// 1..MaxFacetValues.
	BatchSize int

	// Progress is optional.
	Progress ProgressFunc
}

// DefaultConfig returns the configuration used in report runs.
func DefaultConfig() Config {
	return Config{BatchSize: MaxFacetValues}
}

// Aggregator issues the count-only facet queries of a report.
type Aggregator struct {
	getter Getter
	config Config
	logger zerolog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(getter Getter, cfg Config) (*Aggregator, error) {
	if cfg.BatchSize < 1 || cfg.BatchSize > MaxFacetValues {
		return nil, fmt.Errorf("batch size must be between 1 and %d (got %d)", MaxFacetValues, cfg.BatchSize)
	}

	return &Aggregator{
		getter: getter,
		config: cfg,
		logger: logging.NewLogger("stats"),
	}, nil
}

// Batches partitions ids into consecutive groups of at most size.
func Batches(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	return lo.Chunk(ids, size)
}

// BatchCount returns the number of batches n organizations need.
func (a *Aggregator) BatchCount(n int) int {
	return (n + a.config.BatchSize - 1) / a.config.BatchSize
}

// RangeQuery is the free-text registration date filter of a period.
func RangeQuery(p period.Period) string {
	return fmt.Sprintf("registered:[%s TO %s]", p.StartDate(), p.EndDate())
}

// Aggregate returns a copy of orgs with cumulative, annual and elapsed-period
// counts filled in. Every batch costs 2 + len(sched.Elapsed) requests.
// Organization ids must be unique.
func (a *Aggregator) Aggregate(ctx context.Context, orgs []consortium.Organization, sched period.Schedule) ([]consortium.Organization, error) {
	start := time.Now()
	keys := sched.Keys()

	out := make([]consortium.Organization, len(orgs))
	index := make(map[string]int, len(orgs))
	for i, o := range orgs {
		o.Stats = o.Stats.Clone()
		for _, k := range keys {
			if _, ok := o.Stats.PeriodTotals[k]; !ok {
				o.Stats.PeriodTotals[k] = 0
			}
		}
		out[i] = o
		index[o.ID] = i
	}

	batches := Batches(consortium.IDs(orgs), a.config.BatchSize)
	year := strconv.Itoa(sched.Year)

	for n, batch := range batches {
		if a.config.Progress != nil {
			a.config.Progress(n+1, len(batches), batch)
		}
		a.logger.Info().
			Int("batch", n+1).
			Int("batches", len(batches)).
			Strs("organizations", batch).
			Msg("Querying batch")

		providerIDs := strings.Join(batch, ",")

		cumulative, err := a.count(ctx, url.Values{
			"provider-id": {providerIDs},
		})
		if err != nil {
			return nil, fmt.Errorf("batch %d cumulative totals: %w", n+1, err)
		}

		annual, err := a.count(ctx, url.Values{
			"provider-id": {providerIDs},
			"registered":  {year},
		})
		if err != nil {
			return nil, fmt.Errorf("batch %d annual totals: %w", n+1, err)
		}

		for _, id := range batch {
			s := &out[index[id]].Stats
			s.CumulativeTotal = cumulative.ProviderCount(id)
			s.AnnualTotal = annual.ProviderCount(id)
		}

		for _, p := range sched.Elapsed {
			doc, err := a.count(ctx, url.Values{
				"provider-id": {providerIDs},
				"registered":  {year},
				"query":       {RangeQuery(p)},
			})
			if err != nil {
				return nil, fmt.Errorf("batch %d period %s: %w", n+1, p.Key, err)
			}

			for _, id := range batch {
				out[index[id]].Stats.PeriodTotals[p.Key] = doc.ProviderCount(id)
			}
		}
	}

	a.logger.Info().
		Int("organizations", len(orgs)).
		Int("batches", len(batches)).
		Int("periods", len(sched.Elapsed)).
		Dur("duration", time.Since(start)).
		Msg("Aggregation complete")

	return out, nil
}

// count issues a count-only query; no DOI records are returned. A response
// without meta.total is a ResponseShapeError.
func (a *Aggregator) count(ctx context.Context, filter url.Values) (*client.Document, error) {
	filter.Set("page[size]", "0")
	doc, err := a.getter.Get(ctx, Endpoint, "", filter)
	if err != nil {
		return nil, err
	}
	if _, err := doc.Total(); err != nil {
		return nil, err
	}
	return doc, nil
}
