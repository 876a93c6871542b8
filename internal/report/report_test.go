package report

import (
	"bytes"
	"fide-scraper/internal/ledger"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/reconcile"
	"fide-scraper/internal/scrapers/fide"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutcomes(t *testing.T) {
	nov := rating.MonthlyRecord{Month: rating.MonthEnd(2025, time.November), Standard: rating.Rated(2450), Blitz: rating.Rated(2100)}
	longName := strings.Repeat("x", 50)

	var out bytes.Buffer
	Outcomes(&out, []reconcile.Outcome{
		{PlayerID: "12345678", Name: "Doe, Jane", History: []rating.MonthlyRecord{nov}, NewMonths: []rating.MonthlyRecord{nov}},
		{PlayerID: "87654321", History: []rating.MonthlyRecord{}},
		{PlayerID: "55555555", Name: longName, History: []rating.MonthlyRecord{nov}},
		{PlayerID: "10000001", Err: reconcile.ErrExtraction},
	})

	text := out.String()
	require.Contains(t, text, "FIDE ID")
	require.Contains(t, text, "2025-11-30")
	require.Contains(t, text, "Doe, Jane")
	require.Contains(t, text, "2450")
	require.Contains(t, text, "Unrated")
	require.Contains(t, text, "Unknown")
	require.Contains(t, text, strings.Repeat("x", 37)+"...")
	require.NotContains(t, text, strings.Repeat("x", 38))
	require.NotContains(t, text, "10000001")
}

func TestOutcomesEmpty(t *testing.T) {
	var out bytes.Buffer
	Outcomes(&out, []reconcile.Outcome{{PlayerID: "1", Err: reconcile.ErrInvalidIdentifier}})
	require.Equal(t, "No player data to display.\n", out.String())
}

func TestHistory(t *testing.T) {
	var out bytes.Buffer
	History(&out, "12345678", nil)
	require.Equal(t, "No history recorded for FIDE ID 12345678.\n", out.String())

	out.Reset()
	History(&out, "12345678", []ledger.Entry{
		{PlayerID: "12345678", PlayerName: "Doe, Jane", Record: rating.MonthlyRecord{Month: rating.MonthEnd(2025, time.November), Standard: rating.Rated(2450)}},
		{PlayerID: "12345678", PlayerName: "Doe, Jane", Record: rating.MonthlyRecord{Month: rating.MonthEnd(2025, time.October), Rapid: rating.Rated(2300)}},
	})
	text := out.String()
	require.Contains(t, text, "(12345678)")
	require.Less(t, strings.Index(text, "2025-11-30"), strings.Index(text, "2025-10-31"))
}

func TestCurrent(t *testing.T) {
	var out bytes.Buffer
	Current(&out, fide.Current{Standard: rating.Rated(2830), Blitz: rating.Unrated})
	require.Equal(t, "Standard: 2830\nRapid: Unrated\nBlitz: Unrated\n", out.String())
}

func TestSummary(t *testing.T) {
	var out bytes.Buffer
	Summary{OutputPath: "fide_ratings.csv", Succeeded: 2, Failed: 1}.Write(&out)
	require.Equal(t, "Output written to: fide_ratings.csv\nProcessed 2 IDs successfully, 1 errors\n", out.String())

	out.Reset()
	Summary{
		OutputPath: "out.csv", Succeeded: 1,
		EmailsRan: true, EmailsSent: 1, EmailsFailed: 2,
		APIRan: true, APIPosted: 3,
	}.Write(&out)
	require.Equal(t,
		"Output written to: out.csv\nProcessed 1 IDs successfully, 0 errors\nEmails: 1 sent, 2 failed\nAPI updates: 3 posted, 0 failed\n",
		out.String(),
	)
}
