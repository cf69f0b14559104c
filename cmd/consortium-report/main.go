// Command consortium-report writes the DOI registration statistics of a
// DataCite consortium to a CSV file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/client"
	"github.com/Sternrassler/consortium-doi-report/pkg/config"
	"github.com/Sternrassler/consortium-doi-report/pkg/logging"
	"github.com/Sternrassler/consortium-doi-report/pkg/metrics"
	"github.com/Sternrassler/consortium-doi-report/pkg/pagination"
	"github.com/Sternrassler/consortium-doi-report/pkg/period"
	"github.com/Sternrassler/consortium-doi-report/pkg/report"
	"github.com/Sternrassler/consortium-doi-report/pkg/roster"
	"github.com/Sternrassler/consortium-doi-report/pkg/snapshot"
	"github.com/Sternrassler/consortium-doi-report/pkg/stats"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Exit codes
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newRunner(os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

type runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func newRunner(stdout, stderr io.Writer) *runner {
	return &runner{stdout: stdout, stderr: stderr, now: time.Now}
}

func (r *runner) run(ctx context.Context, args []string) int {
	start := r.now()

	flags := flag.NewFlagSet("consortium-report", flag.ContinueOnError)
	flags.SetOutput(r.stderr)
	envFile := flags.String("env", config.DefaultEnvFile, "dotenv file with report settings")
	if err := flags.Parse(args); err != nil {
		return exitConfig
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(r.stderr, err)
		return exitConfig
	}

	runID := uuid.NewString()
	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: r.stderr,
		RunID:  runID,
	})

	m := metrics.New()
	clientCfg := cfg.ClientConfig()
	clientCfg.Metrics = m
	api, err := client.New(clientCfg)
	if err != nil {
		log.Error().Err(err).Msg("Invalid client configuration")
		return exitConfig
	}

	log.Info().
		Str("consortium", cfg.ConsortiumID).
		Int("year", cfg.Year).
		Str("granularity", string(cfg.Granularity)).
		Str("instance", string(cfg.Instance)).
		Msg("Starting report")

	rep, batches, err := r.generate(ctx, api, cfg)
	if err != nil {
		log.Error().Err(err).Int("api_requests", api.RequestCount()).Msg("Report failed")
		return exitError
	}

	path, err := report.WriteFile(cfg.OutputDir, rep)
	if err != nil {
		log.Error().Err(err).Msg("Report failed")
		return exitError
	}
	fmt.Fprintln(r.stdout, path)

	finished := r.now()
	r.publishSnapshot(ctx, cfg, runID, rep, finished)

	m.ObserveRun(len(rep.Consortium.Organizations), batches, finished)
	if cfg.PushgatewayURL != "" {
		if err := m.Push(ctx, cfg.PushgatewayURL, cfg.ConsortiumID); err != nil {
			log.Warn().Err(err).Str("pushgateway", cfg.PushgatewayURL).Msg("Failed to push metrics")
		} else {
			log.Info().Str("pushgateway", cfg.PushgatewayURL).Msg("Metrics pushed")
		}
	}

	fmt.Fprintln(r.stdout, formatDuration(finished.Sub(start)))
	fmt.Fprintf(r.stdout, "API request count: %d\n", api.RequestCount())

	return exitOK
}

// generate fetches the roster, aggregates the statistics and returns the
// finished report with the number of batches it took.
func (r *runner) generate(ctx context.Context, api *client.Client, cfg *config.Config) (report.Report, int, error) {
	today := r.now()

	sched, err := period.Calculate(cfg.Year, cfg.Granularity, today)
	if err != nil {
		return report.Report{}, 0, err
	}
	keys := sched.Keys()

	orgs, err := roster.NewFetcher(api, pagination.DefaultConfig()).Fetch(ctx, cfg.ConsortiumID, keys)
	if err != nil {
		return report.Report{}, 0, err
	}

	upper := strings.ToUpper(cfg.ConsortiumID)
	fmt.Fprintf(r.stdout, "Getting %s DOIs for %d...\n", upper, cfg.Year)

	aggCfg := stats.DefaultConfig()
	aggCfg.Progress = func(batch, total int, ids []string) {
		fmt.Fprintf(r.stdout, "Batch %d of %d: %s\n", batch, total, strings.Join(ids, ","))
	}
	agg, err := stats.NewAggregator(api, aggCfg)
	if err != nil {
		return report.Report{}, 0, err
	}

	orgs, err = agg.Aggregate(ctx, orgs, sched)
	if err != nil {
		return report.Report{}, 0, err
	}

	fmt.Fprintf(r.stdout, "Counting %s DOIs by registration period...\n", upper)

	return report.Report{
		Consortium:  stats.Build(cfg.ConsortiumID, orgs, keys),
		PeriodKeys:  keys,
		Year:        cfg.Year,
		Granularity: cfg.Granularity,
		Instance:    cfg.Instance,
		Today:       today,
	}, agg.BatchCount(len(orgs)), nil
}

// publishSnapshot stores the report in Redis when configured. Failures are
// logged; the CSV file is already written.
func (r *runner) publishSnapshot(ctx context.Context, cfg *config.Config, runID string, rep report.Report, finished time.Time) {
	if cfg.RedisURL == "" {
		return
	}

	rdb, err := snapshot.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot skipped")
		return
	}
	defer rdb.Close()

	snap := snapshot.FromReport(runID, rep, finished)
	if err := snapshot.NewPublisher(rdb, cfg.SnapshotTTL).Publish(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("Failed to publish snapshot")
	}
}

func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	return fmt.Sprintf("Total time: %.0f minutes %.2f seconds", math.Floor(secs/60), math.Mod(secs, 60))
}
