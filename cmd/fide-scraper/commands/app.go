package commands

import (
	"context"
	"errors"
	"fide-scraper/internal/components/chrono"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/config"
	"fide-scraper/internal/ledger"
	"fide-scraper/internal/notify/email"
	"fide-scraper/internal/notify/ratingsapi"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/reconcile"
	"fide-scraper/internal/report"
	"fide-scraper/internal/roster"
	"fide-scraper/internal/scrapers/fide"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// app wires the components of one invocation together.
type app struct {
	config config.Config
	notify bool
	out    io.Writer
	errOut io.Writer
	time   chrono.TimeAPI
	// newTel creates the telemetry of a single run.
	newTel func(runID string) telemetry.API
	// output receives http dumps, it may be nil.
	output telemetry.InstrumentOutput
	// sender overrides smtp delivery when set.
	sender email.Sender
}

func (a *app) fideClient(tel telemetry.API) *fide.Client {
	return fide.NewClient(fide.Options{
		BaseURL:          a.config.Fide.BaseURL,
		Timeout:          a.config.Fide.Timeout,
		BypassCloudflare: a.config.Fide.BypassCloudflare,
		Output:           a.output,
	}, tel)
}

// batch reconciles the whole roster against the ledger then notifies the
// players with new months. It returns an exitError with code 1 when no
// player succeeded and code 2 on structural failures.
func (a *app) batch(ctx context.Context) error {
	runID := uuid.NewString()
	tel := a.newTel(runID)
	cfg := a.config

	fmt.Fprintf(a.out, "Processing FIDE IDs from file: %s\n", cfg.InputFile)

	players, err := roster.Load(cfg.InputFile, tel)
	if errors.Is(err, roster.ErrEmpty) {
		return exit(2, errors.New("Input file is empty or contains no valid FIDE IDs."))
	}
	if err != nil {
		return exit(2, err)
	}

	store := ledger.NewStore(cfg.OutputFile, tel)
	runner := reconcile.NewRunner(
		a.fideClient(tel),
		fide.NewExtractor(cfg.Fide.Layout),
		store,
		a.time,
		tel,
	)

	result, err := runner.Run(ctx, runID, players.IDs())
	for _, msg := range result.Errors {
		fmt.Fprintf(a.errOut, "Error: %s\n", msg)
	}
	if err != nil {
		return exit(2, err)
	}

	for _, o := range result.Outcomes {
		if o.OK() {
			players.CheckName(o.PlayerID, o.Name)
		}
	}

	fmt.Fprintln(a.out)
	report.Outcomes(a.out, result.Outcomes)

	summary := report.Summary{
		OutputPath: store.Path(),
		Succeeded:  result.Succeeded(),
		Failed:     result.Failed(),
	}
	if a.notify {
		a.notifyPlayers(ctx, tel, result, players, &summary)
	}

	fmt.Fprintln(a.out)
	summary.Write(a.out)

	if result.Succeeded() == 0 {
		return exit(1, nil)
	}
	return nil
}

func (a *app) notifyPlayers(ctx context.Context, tel telemetry.API, result reconcile.Result, players roster.Roster, summary *report.Summary) {
	cfg := a.config

	if cfg.EmailEnabled() {
		sender := a.sender
		if sender == nil {
			sender = email.NewSMTPSender(cfg.SMTP)
		}
		notifier := email.NewNotifier(sender, cfg.SMTP, cfg.Fide.BaseURL, tel)
		summary.EmailsRan = true
		summary.EmailsSent, summary.EmailsFailed = notifier.Notify(ctx, result.Outcomes, players)
	}

	if cfg.RatingsAPI.Enabled() {
		client := ratingsapi.NewClient(cfg.RatingsAPI, a.output, tel)
		summary.APIRan = true
		summary.APIPosted, summary.APIFailed = client.Notify(ctx, result.Outcomes)
	}
}

// lookup prints the current ratings of a single player, the ledger is not
// touched.
func (a *app) lookup(ctx context.Context, id string) error {
	if !rating.ValidID(id) {
		return exit(2, errors.New("Invalid FIDE ID format. Must be numeric (4-10 digits)."))
	}
	tel := a.newTel(uuid.NewString())

	raw, err := a.fideClient(tel).FetchProfile(ctx, id)
	var httpErr *fide.HTTPError
	switch {
	case err == nil:
	case errors.Is(err, fide.ErrNotFound):
		return exit(1, fmt.Errorf("Player not found (FIDE ID: %s)", id))
	case errors.Is(err, fide.ErrTimeout):
		return exit(1, errors.New("Request to FIDE website timed out."))
	case errors.Is(err, fide.ErrTransport):
		return exit(1, errors.New("Unable to connect to FIDE website. Please check your internet connection."))
	case errors.As(err, &httpErr):
		return exit(1, fmt.Errorf("Failed to retrieve ratings. %w", err))
	default:
		return exit(1, fmt.Errorf("Unexpected error occurred: %w", err))
	}

	current, err := fide.ParseCurrent(raw)
	if err != nil || !current.HasAnyRating() {
		return exit(1, fmt.Errorf("Unable to extract ratings from FIDE profile (FIDE ID: %s)", id))
	}

	report.Current(a.out, current)
	return nil
}

// history prints everything the ledger holds for a player.
func (a *app) history(ctx context.Context, id string) error {
	if !rating.ValidID(id) {
		return exit(2, errors.New("Invalid FIDE ID format. Must be numeric (4-10 digits)."))
	}
	tel := a.newTel(uuid.NewString())
	store := ledger.NewStore(a.config.OutputFile, tel)
	report.History(a.out, id, store.Player(ctx, id))
	return nil
}
