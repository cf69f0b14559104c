//go:build integration

package integration

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/consortium-doi-report/internal/testutil"
	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/consortium"
	"github.com/Sternrassler/consortium-doi-report/pkg/metrics"
	"github.com/Sternrassler/consortium-doi-report/pkg/pagination"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
	"github.com/Sternrassler/consortium-doi-report/pkg/report"
	"github.com/Sternrassler/consortium-doi-report/pkg/roster"
	"github.com/Sternrassler/consortium-doi-report/pkg/snapshot"
	"github.com/Sternrassler/consortium-doi-report/pkg/stats"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// TestFullReportFlow runs roster → aggregation → CSV → snapshot against the
// mock API and a real Redis.
func TestFullReportFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockDataCite()
	defer mock.Close()

	// 23 members: 3 batches of 10, 10 and 3.
	for i := 1; i <= 23; i++ {
		id := fmt.Sprintf("org%02d", i)
		mock.AddProvider(id, fmt.Sprintf("Organization %d", i), "dc")
		mock.AddDOIs(id, time.Date(2024, time.Month(i%12+1), 10, 0, 0, 0, 0, time.UTC), i)
		mock.AddDOIs(id, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	}
	mock.AddProvider("elsewhere", "Not A Member", "other")
	mock.AddDOIs("elsewhere", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100)

	m := metrics.New()
	cfg := client.DefaultConfig(client.InstanceTest)
	cfg.BaseURL = mock.URL()
	cfg.Metrics = m
	api, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	ctx := context.Background()
	today := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	sched, err := period.Calculate(2024, period.Quarterly, today)
	if err != nil {
		t.Fatalf("period.Calculate() error = %v", err)
	}
	keys := sched.Keys()

	orgs, err := roster.NewFetcher(api, pagination.Config{PageSize: 10}).Fetch(ctx, "dc", keys)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(orgs) != 23 {
		t.Fatalf("roster = %d, want 23", len(orgs))
	}

	agg, err := stats.NewAggregator(api, stats.DefaultConfig())
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}
	orgs, err = agg.Aggregate(ctx, orgs, sched)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	// 3 roster pages + 3 batches x (cumulative + annual + Q1 + Q2)
	if got := api.RequestCount(); got != 3+3*4 {
		t.Errorf("requests = %d, want 15", got)
	}
	if got := prom.ToFloat64(m.RequestsTotal.WithLabelValues("dois", "200")); got != 12 {
		t.Errorf("dois requests metric = %v, want 12", got)
	}

	rep := report.Report{
		Consortium:  stats.Build("dc", orgs, keys),
		PeriodKeys:  keys,
		Year:        2024,
		Granularity: period.Quarterly,
		Instance:    client.InstanceTest,
		Today:       today,
	}
	checkTotals(t, rep.Consortium)

	path, err := report.WriteFile(t.TempDir(), rep)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	publisher := snapshot.NewPublisher(redisClient, time.Hour)
	if err := publisher.Publish(ctx, snapshot.FromReport("e2e", rep, today)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	latest, err := publisher.Latest(ctx, snapshot.Key{
		Consortium:  "dc",
		Instance:    client.InstanceTest,
		Year:        2024,
		Granularity: period.Quarterly,
	})
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}

	if !reflect.DeepEqual(append([][]string{latest.Header}, latest.Rows...), records) {
		t.Error("snapshot rows differ from CSV file")
	}
}

// checkTotals verifies the roll-up against the fixture: org i has i DOIs in
// 2024 and one older DOI.
func checkTotals(t *testing.T, c consortium.Consortium) {
	t.Helper()

	wantAnnual, wantQ1, wantQ2 := 0, 0, 0
	for i := 1; i <= 23; i++ {
		wantAnnual += i
		switch month := i%12 + 1; {
		case month <= 3:
			wantQ1 += i
		case month <= 6:
			wantQ2 += i
		}
	}

	if c.Stats.AnnualTotal != wantAnnual {
		t.Errorf("annual_total = %d, want %d", c.Stats.AnnualTotal, wantAnnual)
	}
	if c.Stats.CumulativeTotal != wantAnnual+23 {
		t.Errorf("cumulative_total = %d, want %d", c.Stats.CumulativeTotal, wantAnnual+23)
	}
	if c.Stats.PeriodTotals["Q1"] != wantQ1 || c.Stats.PeriodTotals["Q2"] != wantQ2 {
		t.Errorf("Q1/Q2 = %d/%d, want %d/%d", c.Stats.PeriodTotals["Q1"], c.Stats.PeriodTotals["Q2"], wantQ1, wantQ2)
	}
	if c.Stats.PeriodTotals["Q3"] != 0 || c.Stats.PeriodTotals["Q4"] != 0 {
		t.Errorf("unelapsed quarters = %d/%d, want 0", c.Stats.PeriodTotals["Q3"], c.Stats.PeriodTotals["Q4"])
	}
}
