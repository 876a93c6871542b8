package report

import (
	"fide-scraper/internal/ledger"
	"fide-scraper/internal/rating"
	"fide-scraper/internal/reconcile"
	"fide-scraper/internal/scrapers/fide"
	"fide-scraper/pkg/textutil"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

// MaxNameLength is the width names are truncated to in tables.
const MaxNameLength = 40

func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func display(r rating.Rating) string {
	if !r.IsRated() {
		return "Unrated"
	}
	return r.String()
}

func displayName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return textutil.Truncate(name, MaxNameLength)
}

// Outcomes renders one row per successful outcome with its most recent
// record and how many months were new.
func Outcomes(w io.Writer, outcomes []reconcile.Outcome) {
	rows := []table.Row{}
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		date, standard, rapid, blitz := "-", "Unrated", "Unrated", "Unrated"
		if latest, ok := o.Latest(); ok {
			date = rating.FormatDate(latest.Month)
			standard = display(latest.Standard)
			rapid = display(latest.Rapid)
			blitz = display(latest.Blitz)
		}
		rows = append(rows, table.Row{
			date,
			o.PlayerID,
			displayName(o.Name),
			standard,
			rapid,
			blitz,
			strconv.Itoa(len(o.NewMonths)),
		})
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No player data to display.")
		return
	}

	t := NewTable(w)
	t.AppendHeader(table.Row{"Date", "FIDE ID", "Player Name", "Standard", "Rapid", "Blitz", "New"})
	t.AppendRows(rows)
	t.Render()
}

// History renders a player's ledger entries in the order given.
func History(w io.Writer, id string, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No history recorded for FIDE ID %s.\n", id)
		return
	}

	t := NewTable(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", displayName(entries[0].PlayerName), id))
	t.AppendHeader(table.Row{"Date", "Standard", "Rapid", "Blitz"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			rating.FormatDate(e.Record.Month),
			display(e.Record.Standard),
			display(e.Record.Rapid),
			display(e.Record.Blitz),
		})
	}
	t.Render()
}

// Current renders the single lookup answer.
func Current(w io.Writer, c fide.Current) {
	fmt.Fprintf(w, "Standard: %s\nRapid: %s\nBlitz: %s\n", display(c.Standard), display(c.Rapid), display(c.Blitz))
}

type Summary struct {
	OutputPath string
	Succeeded  int
	Failed     int

	EmailsRan    bool
	EmailsSent   int
	EmailsFailed int

	APIRan    bool
	APIPosted int
	APIFailed int
}

func (s Summary) Write(w io.Writer) {
	fmt.Fprintf(w, "Output written to: %s\n", s.OutputPath)
	fmt.Fprintf(w, "Processed %d IDs successfully, %d errors\n", s.Succeeded, s.Failed)
	if s.EmailsRan {
		fmt.Fprintf(w, "Emails: %d sent, %d failed\n", s.EmailsSent, s.EmailsFailed)
	}
	if s.APIRan {
		fmt.Fprintf(w, "API updates: %d posted, %d failed\n", s.APIPosted, s.APIFailed)
	}
}
