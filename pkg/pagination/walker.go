package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/rs/zerolog/log"
)

// ErrTooManyPages is returned when an endpoint reports more pages than
// Config.MaxPages allows.
var ErrTooManyPages = errors.New("too many pages")

// Config holds walker configuration.
type Config struct {
	// PageSize is sent as page[size]. DataCite caps it at 1000 for most
	// endpoints and 200 for providers.
	PageSize int

	// MaxPages bounds the walk.
	MaxPages int
}

// DefaultConfig returns the configuration used for provider listings.
func DefaultConfig() Config {
	return Config{
		PageSize: 200,
		MaxPages: 100,
	}
}

// Getter is the part of the API client the walker needs.
type Getter interface {
	Get(ctx context.Context, endpoint, id string, query url.Values) (*client.Document, error)
}

// VisitFunc receives every page in order. Returning an error stops the walk.
type VisitFunc func(page int, doc *client.Document) error

// Walker fetches all pages of a list endpoint.
type Walker struct {
	getter Getter
	config Config
}

// NewWalker creates a new walker.
func NewWalker(getter Getter, config Config) *Walker {
	if config.PageSize <= 0 {
		config.PageSize = 200
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}

	return &Walker{
		getter: getter,
		config: config,
	}
}

// Walk requests page 1..totalPages of endpoint with the given filter query.
// The query is not modified.
func (w *Walker) Walk(ctx context.Context, endpoint string, query url.Values, visit VisitFunc) error {
	start := time.Now()
	totalPages := 1

	for page := 1; page <= totalPages; page++ {
		pageQuery := cloneQuery(query)
		pageQuery.Set("page[size]", strconv.Itoa(w.config.PageSize))
		pageQuery.Set("page[number]", strconv.Itoa(page))

		doc, err := w.getter.Get(ctx, endpoint, "", pageQuery)
		if err != nil {
			return fmt.Errorf("fetch %s page %d: %w", endpoint, page, err)
		}

		if page == 1 {
			totalPages = doc.TotalPages()
			log.Debug().
				Str("endpoint", endpoint).
				Int("total_pages", totalPages).
				Msg("Starting page walk")
			if totalPages > w.config.MaxPages {
				return fmt.Errorf("%w: %s reports %d pages, limit is %d",
					ErrTooManyPages, endpoint, totalPages, w.config.MaxPages)
			}
		}

		if err := visit(page, doc); err != nil {
			return err
		}
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Page walk complete")

	return nil
}

func cloneQuery(q url.Values) url.Values {
	c := make(url.Values, len(q)+2)
	for k, v := range q {
		c[k] = append([]string(nil), v...)
	}
	return c
}
