package reconcile

import (
	"fide-scraper/internal/ledger"
	"fide-scraper/internal/rating"
)

// DetectNew returns the records of `fresh` whose month is not yet recorded
// for `id` in `view`, in the order of `fresh`. Ratings are not compared, a
// month already in the ledger is never new again.
func DetectNew(id string, fresh []rating.MonthlyRecord, view ledger.Snapshot) []rating.MonthlyRecord {
	known := map[string]struct{}{}
	for _, r := range view[id] {
		known[rating.FormatDate(r.Month)] = struct{}{}
	}

	out := []rating.MonthlyRecord{}
	for _, r := range fresh {
		if _, ok := known[rating.FormatDate(r.Month)]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
