package reconcile

import (
	"context"
	"errors"
	"fide-scraper/internal/components/assert"
	"fide-scraper/internal/components/chrono"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/ledger"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/scrapers/fide"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fide-scraper/reconcile")

const (
	report_runner_run        = "runner.run"
	report_runner_player     = "runner.player"
	report_runner_merged     = "runner.merged"
	report_runner_new_months = "runner.new-months"
)

var (
	ErrInvalidIdentifier = errors.New("invalid FIDE ID format")
	ErrExtraction        = errors.New("unable to extract data from FIDE profile")
)

// Fetcher returns the raw profile page of a player.
//
// note: fault injection point
type Fetcher interface {
	FetchProfile(ctx context.Context, id string) ([]byte, error)
}

// Parser turns a raw profile page into a display name and history.
type Parser interface {
	Parse(raw []byte) (fide.Profile, error)
}

// Ledger is the persisted history the run reconciles against.
//
// note: fault injection point
type Ledger interface {
	Load(ctx context.Context) ledger.Snapshot
	Merge(ctx context.Context, updates []ledger.Update) error
}

// Outcome is the result of reconciling one identifier.
type Outcome struct {
	PlayerID string
	// Name may be empty when the page carries none.
	Name string
	// History is the full extracted history, most recent first.
	History []rating.MonthlyRecord
	// NewMonths is the subset of History absent from the ledger at the start
	// of the run.
	NewMonths []rating.MonthlyRecord
	// Err is nil when the player made it into the ledger merge.
	Err error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Latest returns the most recent extracted record.
func (o Outcome) Latest() (rating.MonthlyRecord, bool) {
	if len(o.History) == 0 {
		return rating.MonthlyRecord{}, false
	}
	return o.History[0], true
}

type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Outcomes is in the same order as the input identifiers.
	Outcomes []Outcome
	// Errors holds one message per identifier that failed.
	Errors []string
}

func (r Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

func (r Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Runner reconciles batches of identifiers against the ledger, strictly one
// identifier at a time.
type Runner struct {
	fetcher Fetcher
	parser  Parser
	ledger  Ledger
	time    chrono.TimeAPI
	tel     telemetry.API
}

func NewRunner(fetcher Fetcher, parser Parser, ledger Ledger, time chrono.TimeAPI, tel telemetry.API) Runner {
	assert.NotNil(fetcher)
	assert.NotNil(parser)
	assert.NotNil(ledger)
	assert.NotNil(time)
	assert.NotNil(tel)

	return Runner{
		fetcher: fetcher,
		parser:  parser,
		ledger:  ledger,
		time:    time,
		tel:     telemetry.NewScopedAPI("reconcile", tel),
	}
}

// Run processes every identifier in order. A failing identifier never stops
// the batch, it becomes an outcome with Err set and an entry in
// Result.Errors. The ledger is loaded once before the first identifier and
// merged once after the last. Only a failed merge is returned as an error.
func (r Runner) Run(ctx context.Context, runID string, ids []string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("ids", len(ids)),
	)

	result := Result{
		RunID:     runID,
		StartedAt: r.time.Now(),
		Outcomes:  make([]Outcome, 0, len(ids)),
		Errors:    []string{},
	}

	snapshot := r.ledger.Load(ctx)

	updates := []ledger.Update{}
	for _, id := range ids {
		outcome := r.player(ctx, id, snapshot)
		result.Outcomes = append(result.Outcomes, outcome)

		if !outcome.OK() {
			result.Errors = append(result.Errors, describe(id, outcome.Err))
			r.tel.ReportWarning(report_runner_player, outcome.Err, id)
			continue
		}
		updates = append(updates, ledger.Update{
			PlayerID:   outcome.PlayerID,
			PlayerName: outcome.Name,
			Records:    outcome.History,
		})
	}

	if len(updates) > 0 {
		err := r.ledger.Merge(ctx, updates)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger merge failed")
			r.tel.ReportBroken(report_runner_run, err)
			result.FinishedAt = r.time.Now()
			return result, fmt.Errorf("merge ledger: %w", err)
		}
	}

	r.tel.ReportCount(report_runner_merged, int64(len(updates)))
	result.FinishedAt = r.time.Now()
	return result, nil
}

func (r Runner) player(ctx context.Context, id string, snapshot ledger.Snapshot) Outcome {
	ctx, span := tracer.Start(ctx, "player")
	defer span.End()
	span.SetAttributes(attribute.String("fide_id", id))

	fail := func(err error) Outcome {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{PlayerID: id, Err: err}
	}

	if !rating.ValidID(id) {
		return fail(ErrInvalidIdentifier)
	}

	raw, err := r.fetcher.FetchProfile(ctx, id)
	if err != nil {
		return fail(err)
	}

	profile, err := r.parser.Parse(raw)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrExtraction, err))
	}
	if len(profile.History) == 0 && profile.Name == "" {
		return fail(ErrExtraction)
	}

	fresh := DetectNew(id, profile.History, snapshot)
	if len(fresh) > 0 {
		r.tel.ReportDebug(report_runner_new_months, id, len(fresh))
	}
	span.SetAttributes(
		attribute.Int("history", len(profile.History)),
		attribute.Int("new_months", len(fresh)),
	)

	return Outcome{
		PlayerID:  id,
		Name:      profile.Name,
		History:   profile.History,
		NewMonths: fresh,
	}
}

// describe renders the human readable message for a failed identifier.
func describe(id string, err error) string {
	var httpErr *fide.HTTPError
	switch {
	case errors.Is(err, ErrInvalidIdentifier):
		return fmt.Sprintf("Invalid FIDE ID format: %s (skipped)", id)
	case errors.Is(err, fide.ErrNotFound):
		return fmt.Sprintf("Player not found (FIDE ID: %s) (skipped)", id)
	case errors.Is(err, fide.ErrTimeout):
		return fmt.Sprintf("Request timeout for FIDE ID %s (skipped)", id)
	case errors.Is(err, fide.ErrTransport):
		return fmt.Sprintf("Network error for FIDE ID %s: %s (skipped)", id, err.Error())
	case errors.As(err, &httpErr):
		return fmt.Sprintf("HTTP error for FIDE ID %s: %s (skipped)", id, httpErr.Error())
	case errors.Is(err, ErrExtraction):
		return fmt.Sprintf("Unable to extract data from FIDE profile (FIDE ID: %s) (skipped)", id)
	}
	return fmt.Sprintf("Unexpected error for FIDE ID %s: %s (skipped)", id, err.Error())
}
