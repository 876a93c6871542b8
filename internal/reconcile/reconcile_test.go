package reconcile

import (
	"context"
	"errors"
	"fide-scraper/internal/components/chrono"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/ledger"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/scrapers/fide"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var ratingCmp = cmp.AllowUnexported(rating.Rating{})

func standardOnly(year int, m time.Month, points int) rating.MonthlyRecord {
	return rating.MonthlyRecord{
		Month:    rating.MonthEnd(year, m),
		Standard: rating.Rated(points),
	}
}

type fakeFetcher struct {
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchProfile(ctx context.Context, id string) ([]byte, error) {
	f.calls = append(f.calls, id)
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return []byte(id), nil
}

// fakeParser treats the raw page as the player id.
type fakeParser map[string]fide.Profile

func (p fakeParser) Parse(raw []byte) (fide.Profile, error) {
	profile, ok := p[string(raw)]
	if !ok {
		return fide.Profile{}, nil
	}
	return profile, nil
}

type fakeLedger struct {
	snapshot ledger.Snapshot
	loads    int
	merges   [][]ledger.Update
	mergeErr error
}

func (l *fakeLedger) Load(ctx context.Context) ledger.Snapshot {
	l.loads++
	if l.snapshot == nil {
		return ledger.Snapshot{}
	}
	return l.snapshot
}

func (l *fakeLedger) Merge(ctx context.Context, updates []ledger.Update) error {
	l.merges = append(l.merges, updates)
	return l.mergeErr
}

func newRunner(t *testing.T, fetcher Fetcher, parser Parser, store Ledger) Runner {
	clock := chrono.FixedTime{At: time.Date(2025, time.December, 2, 8, 0, 0, 0, time.UTC)}
	return NewRunner(fetcher, parser, store, clock, telemetry.NewTestingAPI(t))
}

func TestDetectNew(t *testing.T) {
	view := ledger.Snapshot{
		"12345678": {standardOnly(2025, time.October, 2440)},
	}
	fresh := []rating.MonthlyRecord{
		standardOnly(2025, time.November, 2450),
		standardOnly(2025, time.October, 2440),
	}

	got := DetectNew("12345678", fresh, view)
	require.Empty(t, cmp.Diff([]rating.MonthlyRecord{standardOnly(2025, time.November, 2450)}, got, ratingCmp))

	// a brand new player reports the whole history in order
	got = DetectNew("87654321", fresh, view)
	require.Empty(t, cmp.Diff(fresh, got, ratingCmp))

	got = DetectNew("87654321", fresh, ledger.Snapshot{})
	require.Empty(t, cmp.Diff(fresh, got, ratingCmp))

	require.Len(t, DetectNew("12345678", nil, view), 0)
}

func TestDetectNewIgnoresChangedValues(t *testing.T) {
	view := ledger.Snapshot{
		"12345678": {standardOnly(2025, time.October, 2440)},
	}
	fresh := []rating.MonthlyRecord{standardOnly(2025, time.October, 2999)}
	require.Len(t, DetectNew("12345678", fresh, view), 0)
}

func TestRunBatchIsolation(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		"22222222": fmt.Errorf("%w: connection refused", fide.ErrTransport),
	}}
	parser := fakeParser{
		"11111111": {Name: "One", History: []rating.MonthlyRecord{standardOnly(2025, time.November, 1500)}},
		"33333333": {Name: "Three", History: []rating.MonthlyRecord{standardOnly(2025, time.November, 1700)}},
	}
	store := &fakeLedger{}

	result, err := newRunner(t, fetcher, parser, store).Run(context.Background(), "run", []string{"11111111", "22222222", "33333333"})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 3)
	require.Equal(t, "11111111", result.Outcomes[0].PlayerID)
	require.True(t, result.Outcomes[0].OK())
	require.Equal(t, "22222222", result.Outcomes[1].PlayerID)
	require.ErrorIs(t, result.Outcomes[1].Err, fide.ErrTransport)
	require.Equal(t, "33333333", result.Outcomes[2].PlayerID)
	require.True(t, result.Outcomes[2].OK())

	require.Len(t, result.Errors, 1)
	require.Equal(t, "Network error for FIDE ID 22222222: network error: connection refused (skipped)", result.Errors[0])
	require.Equal(t, 2, result.Succeeded())
	require.Equal(t, 1, result.Failed())

	require.Equal(t, 1, store.loads)
	require.Len(t, store.merges, 1)
	require.Len(t, store.merges[0], 2)
	require.Equal(t, "One", store.merges[0][0].PlayerName)
	require.Equal(t, "Three", store.merges[0][1].PlayerName)
}

func TestRunFailureKinds(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		"10000001": fide.ErrNotFound,
		"10000002": fmt.Errorf("%w: deadline", fide.ErrTimeout),
		"10000003": &fide.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"},
		"10000005": errors.New("boom"),
	}}
	parser := fakeParser{
		// 10000004 parses to nothing at all
		"10000006": {Name: "Named But Historyless"},
	}
	store := &fakeLedger{}

	ids := []string{"12a", "10000001", "10000002", "10000003", "10000004", "10000005", "10000006"}
	result, err := newRunner(t, fetcher, parser, store).Run(context.Background(), "run", ids)
	require.NoError(t, err)

	require.Equal(t, []string{
		"Invalid FIDE ID format: 12a (skipped)",
		"Player not found (FIDE ID: 10000001) (skipped)",
		"Request timeout for FIDE ID 10000002 (skipped)",
		"HTTP error for FIDE ID 10000003: unexpected status 503 Service Unavailable (skipped)",
		"Unable to extract data from FIDE profile (FIDE ID: 10000004) (skipped)",
		"Unexpected error for FIDE ID 10000005: boom (skipped)",
	}, result.Errors)

	require.ErrorIs(t, result.Outcomes[0].Err, ErrInvalidIdentifier)
	require.ErrorIs(t, result.Outcomes[4].Err, ErrExtraction)
	require.True(t, result.Outcomes[6].OK())
	require.Len(t, result.Outcomes[6].NewMonths, 0)

	// the invalid identifier is never fetched
	require.NotContains(t, fetcher.calls, "12a")
	require.Equal(t, 1, result.Succeeded())
}

func TestRunAllFailedSkipsMerge(t *testing.T) {
	store := &fakeLedger{}
	result, err := newRunner(t, &fakeFetcher{}, fakeParser{}, store).Run(context.Background(), "run", []string{"abc", "10000004"})
	require.NoError(t, err)
	require.Equal(t, 0, result.Succeeded())
	require.Len(t, result.Errors, 2)
	require.Len(t, store.merges, 0)
}

func TestRunMergeFailure(t *testing.T) {
	store := &fakeLedger{mergeErr: errors.New("disk full")}
	parser := fakeParser{
		"11111111": {Name: "One", History: []rating.MonthlyRecord{standardOnly(2025, time.November, 1500)}},
	}

	result, err := newRunner(t, &fakeFetcher{}, parser, store).Run(context.Background(), "run", []string{"11111111"})
	require.Error(t, err)
	require.Len(t, result.Outcomes, 1)
}

func TestRunSnapshotConsistency(t *testing.T) {
	// both players are checked against the ledger as it was before the run,
	// whatever the processing order
	store := &fakeLedger{snapshot: ledger.Snapshot{
		"11111111": {standardOnly(2025, time.October, 1500)},
	}}
	parser := fakeParser{
		"11111111": {Name: "One", History: []rating.MonthlyRecord{
			standardOnly(2025, time.November, 1510),
			standardOnly(2025, time.October, 1500),
		}},
		"22222222": {Name: "Two", History: []rating.MonthlyRecord{
			standardOnly(2025, time.November, 1600),
		}},
	}
	runner := newRunner(t, &fakeFetcher{}, parser, store)

	forward, err := runner.Run(context.Background(), "a", []string{"11111111", "22222222"})
	require.NoError(t, err)
	backward, err := runner.Run(context.Background(), "b", []string{"22222222", "11111111"})
	require.NoError(t, err)

	require.Empty(t, cmp.Diff(forward.Outcomes[0].NewMonths, backward.Outcomes[1].NewMonths, ratingCmp))
	require.Empty(t, cmp.Diff(forward.Outcomes[1].NewMonths, backward.Outcomes[0].NewMonths, ratingCmp))
	require.Len(t, forward.Outcomes[0].NewMonths, 1)
	require.Len(t, forward.Outcomes[1].NewMonths, 1)

	// the full history is merged, not just the new subset
	require.Len(t, store.merges[0][0].Records, 2)
}

func TestRunAgainstStore(t *testing.T) {
	tel := telemetry.NewTestingAPI(t)
	store := ledger.NewStore(filepath.Join(t.TempDir(), "fide_ratings.csv"), tel)
	ctx := context.Background()

	require.NoError(t, store.Merge(ctx, []ledger.Update{{
		PlayerID:   "12345678",
		PlayerName: "Doe, Jane",
		Records:    []rating.MonthlyRecord{standardOnly(2025, time.October, 2440)},
	}}))

	parser := fakeParser{
		"12345678": {Name: "Doe, Jane", History: []rating.MonthlyRecord{
			standardOnly(2025, time.November, 2450),
			standardOnly(2025, time.October, 2440),
		}},
		"87654321": {Name: "Roe, Richard", History: []rating.MonthlyRecord{
			standardOnly(2025, time.November, 1900),
			standardOnly(2025, time.October, 1880),
		}},
	}
	runner := NewRunner(&fakeFetcher{}, parser, store, chrono.NewStandardTime(nil), tel)

	first, err := runner.Run(ctx, "first", []string{"12345678", "87654321"})
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(
		[]rating.MonthlyRecord{standardOnly(2025, time.November, 2450)},
		first.Outcomes[0].NewMonths,
		ratingCmp,
	))
	require.Len(t, first.Outcomes[1].NewMonths, 2)
	require.Equal(t, rating.MonthEnd(2025, time.November), first.Outcomes[1].NewMonths[0].Month)

	// nothing is new twice
	second, err := runner.Run(ctx, "second", []string{"12345678", "87654321"})
	require.NoError(t, err)
	for _, outcome := range second.Outcomes {
		require.True(t, outcome.OK())
		require.Len(t, outcome.NewMonths, 0)
	}

	snapshot := store.Load(ctx)
	require.Len(t, snapshot["12345678"], 2)
	require.Len(t, snapshot["87654321"], 2)
}

func TestOutcomeLatest(t *testing.T) {
	_, ok := Outcome{}.Latest()
	require.False(t, ok)

	latest, ok := Outcome{History: []rating.MonthlyRecord{
		standardOnly(2025, time.November, 2450),
		standardOnly(2025, time.October, 2440),
	}}.Latest()
	require.True(t, ok)
	require.Equal(t, rating.MonthEnd(2025, time.November), latest.Month)
}
