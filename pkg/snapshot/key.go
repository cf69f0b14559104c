package snapshot

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
)

// KeyPrefix is the namespace of all snapshot keys.
const KeyPrefix = "doi-report"

// Key identifies the snapshots of one report configuration.
type Key struct {
	Consortium  string
	Instance    client.Instance
	Year        int
	Granularity period.Granularity
}

// String generates the deterministic base key.
// Format: doi-report:consortium:instance:year:granularity
//
// Example:
//
//	doi-report:dc:production:2024:monthly
func (k Key) String() string {
	return strings.Join([]string{
		KeyPrefix,
		strings.ToLower(k.Consortium),
		strings.ToLower(string(k.Instance)),
		fmt.Sprint(k.Year),
		string(k.Granularity),
	}, ":")
}

// Run returns the key of the snapshot written by runID.
func (k Key) Run(runID string) string {
	return k.String() + ":" + runID
}

// Latest returns the key of the pointer to the most recent run id.
func (k Key) Latest() string {
	return k.String() + ":latest"
}
