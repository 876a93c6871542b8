package fide

import (
	"bytes"
	"fide-scraper/internal/rating"
	"fide-scraper/pkg/htmlutil"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Layout locates the rating history table and its columns in a profile page.
type Layout struct {
	// Table is the css selector of the history table, the first match wins.
	Table    string `json:"table"`
	Month    int    `json:"month"`
	Standard int    `json:"standard"`
	Rapid    int    `json:"rapid"`
	Blitz    int    `json:"blitz"`
}

var DefaultLayout = Layout{
	Table:    "table.profile-table_chart-table",
	Month:    0,
	Standard: 1,
	Rapid:    2,
	Blitz:    3,
}

func (l Layout) minCells() int {
	n := 0
	for _, idx := range []int{l.Month, l.Standard, l.Rapid, l.Blitz} {
		if idx+1 > n {
			n = idx + 1
		}
	}
	return n
}

// Profile is what a single profile page yields.
type Profile struct {
	Name string
	// History is most recent first with unique months.
	History []rating.MonthlyRecord
}

type Extractor struct {
	layout Layout
}

func NewExtractor(layout Layout) Extractor {
	if layout.Table == "" {
		layout.Table = DefaultLayout.Table
	}
	return Extractor{layout: layout}
}

// Parse reads the display name and rating history out of raw markup. Empty
// markup yields an empty profile.
func (e Extractor) Parse(raw []byte) (Profile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(raw))
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:    ExtractName(doc),
		History: e.History(doc),
	}, nil
}

type historyRow struct {
	label  string
	record rating.MonthlyRecord
}

// History extracts the monthly records in document order. The header row is
// skipped, so are rows with too few cells. When a month appears more than
// once, however its label is spelled, only its first row is kept. Rows whose
// label does not parse as a month are dropped.
func (e Extractor) History(doc *goquery.Document) []rating.MonthlyRecord {
	table := doc.Find(e.layout.Table).First()
	if table.Length() == 0 {
		return []rating.MonthlyRecord{}
	}

	minCells := e.layout.minCells()
	seen := map[string]struct{}{}
	rows := []historyRow{}

	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := tr.Find("td, th")
		if cells.Length() < minCells {
			return
		}
		cell := func(idx int) string {
			return htmlutil.CleanText(htmlutil.GetText(cells.Get(idx)))
		}

		label := cell(e.layout.Month)
		if _, dup := seen[label]; dup {
			return
		}
		seen[label] = struct{}{}

		rows = append(rows, historyRow{
			label: label,
			record: rating.MonthlyRecord{
				Standard: rating.ParseRating(cell(e.layout.Standard)),
				Rapid:    rating.ParseRating(cell(e.layout.Rapid)),
				Blitz:    rating.ParseRating(cell(e.layout.Blitz)),
			},
		})
	})

	out := make([]rating.MonthlyRecord, 0, len(rows))
	emitted := map[string]struct{}{}
	for _, row := range rows {
		month, err := rating.ParseMonthLabel(row.label)
		if err != nil {
			continue
		}
		key := rating.FormatDate(month)
		if _, dup := emitted[key]; dup {
			continue
		}
		emitted[key] = struct{}{}
		row.record.Month = month
		out = append(out, row.record)
	}
	return out
}

// ExtractName finds the player's display name: h1.player-title, else the
// first non-empty h1, else the page title without its site suffix.
func ExtractName(doc *goquery.Document) string {
	name := htmlutil.SelectionText(doc.Find("h1.player-title"))
	if name != "" {
		return name
	}
	for _, h1 := range doc.Find("h1").Nodes {
		name = htmlutil.CleanText(htmlutil.GetText(h1))
		if name != "" {
			return name
		}
	}

	title := htmlutil.SelectionText(doc.Find("title"))
	title, _, _ = strings.Cut(title, " - ")
	title, _, _ = strings.Cut(title, " | ")
	return strings.TrimSpace(title)
}

var currentSelectors = map[rating.Discipline]string{
	rating.Standard: "div.profile-standart",
	rating.Rapid:    "div.profile-rapid",
	rating.Blitz:    "div.profile-blitz",
}

// ExtractCurrent reads the current published rating of one discipline from
// the first paragraph of its rating box.
func ExtractCurrent(doc *goquery.Document, discipline rating.Discipline) rating.Rating {
	selector, ok := currentSelectors[discipline]
	if !ok {
		return rating.Unrated
	}
	text := htmlutil.SelectionText(doc.Find(selector).First().Find("p"))
	return rating.ParseRatingText(text)
}

// Current is a player's currently published ratings.
type Current struct {
	Name     string
	Standard rating.Rating
	Rapid    rating.Rating
	Blitz    rating.Rating
}

// HasAnyRating reports whether at least one discipline is rated.
func (c Current) HasAnyRating() bool {
	return c.Standard.IsRated() || c.Rapid.IsRated() || c.Blitz.IsRated()
}

// ParseCurrent reads the display name and current ratings out of raw markup.
func ParseCurrent(raw []byte) (Current, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(raw))
	if err != nil {
		return Current{}, err
	}
	return Current{
		Name:     ExtractName(doc),
		Standard: ExtractCurrent(doc, rating.Standard),
		Rapid:    ExtractCurrent(doc, rating.Rapid),
		Blitz:    ExtractCurrent(doc, rating.Blitz),
	}, nil
}
