// Package report writes consortium DOI statistics as CSV.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/consortium"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
	"github.com/rs/zerolog/log"
)

// SummaryName is the org_name of the consortium row.
const SummaryName = "All Consortium Organizations"

// Report is a finished consortium report.
type Report struct {
	Consortium  consortium.Consortium
	PeriodKeys  []string
	Year        int
	Granularity period.Granularity
	Instance    client.Instance
	Today       time.Time
}

// Header returns the column names.
func (r Report) Header() []string {
	header := make([]string, 0, len(r.PeriodKeys)+4)
	header = append(header, "org_id", "org_name")
	header = append(header, r.PeriodKeys...)
	return append(header, "annual_total", "cumulative_total")
}

// Rows returns the data rows: one per organization in roster order, then the
// consortium summary row.
func (r Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Consortium.Organizations)+1)
	for _, o := range r.Consortium.Organizations {
		rows = append(rows, r.record(o.ID, o.Name, o.Stats))
	}
	return append(rows, r.record(r.Consortium.ID, SummaryName, r.Consortium.Stats))
}

func (r Report) record(id, name string, s consortium.Statistics) []string {
	rec := make([]string, 0, len(r.PeriodKeys)+4)
	rec = append(rec, id, name)
	for _, k := range r.PeriodKeys {
		rec = append(rec, strconv.Itoa(s.PeriodTotals[k]))
	}
	return append(rec, strconv.Itoa(s.AnnualTotal), strconv.Itoa(s.CumulativeTotal))
}

// Filename is the name of the report file. Runs on different days or
// instances never collide.
func Filename(today time.Time, consortiumID string, instance client.Instance, year int, g period.Granularity) string {
	return fmt.Sprintf("%s_%s_%s_dois_%d_%s.csv",
		today.Format(period.DateLayout),
		strings.ToUpper(consortiumID),
		instance,
		year,
		g,
	)
}

// Filename returns the file name of r.
func (r Report) Filename() string {
	return Filename(r.Today, r.Consortium.ID, r.Instance, r.Year, r.Granularity)
}

// Write writes the header and all rows of r to w.
func Write(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(r.Rows()); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes r into dir and returns the path. A file that could not be
// written completely is removed.
func WriteFile(dir string, r Report) (path string, err error) {
	path = filepath.Join(dir, r.Filename())

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report: %w", cerr)
		}
		if err != nil {
			if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warn().Err(rerr).Str("path", path).Msg("Failed to remove partial report")
			}
			path = ""
		}
	}()

	if err := Write(file, r); err != nil {
		return path, fmt.Errorf("write report: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("rows", len(r.Consortium.Organizations)+1).
		Msg("Report written")

	return path, nil
}
