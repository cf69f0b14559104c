package snapshot

import (
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/report"
)

// Snapshot is a finished report as stored in Redis.
type Snapshot struct {
	RunID       string     `json:"run_id"`
	Key         string     `json:"key"`
	GeneratedAt time.Time  `json:"generated_at"`
	Filename    string     `json:"filename"`
	Header      []string   `json:"header"`
	Rows        [][]string `json:"rows"`
}

// FromReport captures the rows of r exactly as they are written to CSV.
func FromReport(runID string, r report.Report, generatedAt time.Time) *Snapshot {
	key := Key{
		Consortium:  r.Consortium.ID,
		Instance:    r.Instance,
		Year:        r.Year,
		Granularity: r.Granularity,
	}

	return &Snapshot{
		RunID:       runID,
		Key:         key.String(),
		GeneratedAt: generatedAt.UTC(),
		Filename:    r.Filename(),
		Header:      r.Header(),
		Rows:        r.Rows(),
	}
}
