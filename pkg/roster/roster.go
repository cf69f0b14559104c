// Package roster fetches the member organizations of a DataCite consortium.
//
// Membership is taken from the providers endpoint filtered by consortium-id.
// The relationship list on the consortium record itself is not consulted.
package roster

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/consortium"
	"github.com/Sternrassler/consortium-doi-report/pkg/logging"
	"github.com/Sternrassler/consortium-doi-report/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Endpoint is the DataCite providers list endpoint.
const Endpoint = "providers"

// Fetcher retrieves consortium rosters.
type Fetcher struct {
	walker *pagination.Walker
	logger zerolog.Logger
}

// NewFetcher creates a roster fetcher on top of an API getter.
func NewFetcher(getter pagination.Getter, cfg pagination.Config) *Fetcher {
	return &Fetcher{
		walker: pagination.NewWalker(getter, cfg),
		logger: logging.NewLogger("roster"),
	}
}

// Fetch returns the organizations of consortiumID in API order, each with
// zeroed statistics for periodKeys. An id seen on an earlier page wins; ids
// differing only in case are the same organization.
func (f *Fetcher) Fetch(ctx context.Context, consortiumID string, periodKeys []string) ([]consortium.Organization, error) {
	var orgs []consortium.Organization

	query := url.Values{"consortium-id": {consortiumID}}
	err := f.walker.Walk(ctx, Endpoint, query, func(page int, doc *client.Document) error {
		resources, err := doc.Resources()
		if err != nil {
			return err
		}

		for _, r := range resources {
			org, missing := organizationFromResource(r, periodKeys)
			if missing != "" {
				return &client.ResponseShapeError{
					Endpoint: Endpoint,
					Query:    query.Encode(),
					Field:    missing,
					Err:      client.ErrMissingField,
				}
			}
			orgs = append(orgs, org)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch roster of %s: %w", consortiumID, err)
	}

	// Facet ids are matched case-insensitively, so ids are deduplicated the
	// same way.
	unique := lo.UniqBy(orgs, func(o consortium.Organization) string { return strings.ToLower(o.ID) })
	if dropped := len(orgs) - len(unique); dropped > 0 {
		f.logger.Warn().
			Str("consortium", consortiumID).
			Int("duplicates", dropped).
			Msg("Dropped duplicate organizations from roster")
	}

	f.logger.Info().
		Str("consortium", consortiumID).
		Int("organizations", len(unique)).
		Msg("Fetched consortium roster")

	return unique, nil
}

// organizationFromResource maps a provider resource. missing names the
// required field that is absent, if any.
func organizationFromResource(r client.Resource, periodKeys []string) (org consortium.Organization, missing string) {
	if strings.TrimSpace(r.ID) == "" {
		return org, "data[].id"
	}

	name, ok := r.StringAttribute("name")
	if !ok {
		return org, fmt.Sprintf("data[%s].attributes.name", r.ID)
	}

	symbol, _ := r.StringAttribute("symbol")
	memberType, _ := r.StringAttribute("memberType")
	country, _ := r.StringAttribute("country")

	return consortium.Organization{
		ID:         r.ID,
		Name:       name,
		Symbol:     symbol,
		MemberType: memberType,
		Country:    country,
		Stats:      consortium.NewStatistics(periodKeys),
	}, ""
}
