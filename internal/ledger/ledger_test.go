package ledger

import (
	"context"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/rating"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var ratingCmp = cmp.AllowUnexported(rating.Rating{})

func month(year int, m time.Month, standard, rapid, blitz rating.Rating) rating.MonthlyRecord {
	return rating.MonthlyRecord{
		Month:    rating.MonthEnd(year, m),
		Standard: standard,
		Rapid:    rapid,
		Blitz:    blitz,
	}
}

func newTestStore(t *testing.T) (Store, *telemetry.TestingAPI) {
	tel := telemetry.NewTestingAPI(t)
	return NewStore(filepath.Join(t.TempDir(), "fide_ratings.csv"), tel), tel
}

func TestLoadMissingFile(t *testing.T) {
	store, tel := newTestStore(t)

	snapshot := store.Load(context.Background())
	require.NotNil(t, snapshot)
	require.Len(t, snapshot, 0)
	require.Len(t, tel.Reports("warning", report_store_load), 0)
}

func TestLoadUnrecognizedSchema(t *testing.T) {
	store, tel := newTestStore(t)
	err := os.WriteFile(store.Path(), []byte("FIDE ID,Player Name,Standard\n12345678,Someone,2400\n"), 0644)
	require.NoError(t, err)

	snapshot := store.Load(context.Background())
	require.Len(t, snapshot, 0)
	require.Len(t, tel.Reports("warning", report_store_load), 1)

	err = os.WriteFile(store.Path(), nil, 0644)
	require.NoError(t, err)
	require.Len(t, store.Load(context.Background()), 0)
}

func TestLoad(t *testing.T) {
	store, tel := newTestStore(t)
	contents := "\ufeffFIDE ID,Date,Player Name,Standard,Rapid,Blitz\n" +
		"12345678,2025-09-30,\"Doe, Jane\",2430,,Not rated\n" +
		"12345678,2025-10-31,\"Doe, Jane\",2440,2300,\n" +
		"12345678,garbage,\"Doe, Jane\",1,1,1\n" +
		"87654321,2025-10-31,Roe,,,1500\n"
	err := os.WriteFile(store.Path(), []byte(contents), 0644)
	require.NoError(t, err)

	snapshot := store.Load(context.Background())
	expected := Snapshot{
		"12345678": {
			month(2025, time.October, rating.Rated(2440), rating.Rated(2300), rating.Unrated),
			month(2025, time.September, rating.Rated(2430), rating.Unrated, rating.Unrated),
		},
		"87654321": {
			month(2025, time.October, rating.Unrated, rating.Unrated, rating.Rated(1500)),
		},
	}
	require.Empty(t, cmp.Diff(expected, snapshot, ratingCmp))
	require.Len(t, tel.Reports("warning", report_store_load), 1)
}

func TestMergeSortsAndPersists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Merge(ctx, []Update{
		{
			PlayerID:   "87654321",
			PlayerName: "Roe, Richard",
			Records: []rating.MonthlyRecord{
				month(2025, time.November, rating.Rated(1900), rating.Unrated, rating.Unrated),
			},
		},
		{
			PlayerID:   "12345678",
			PlayerName: "Doe, Jane",
			Records: []rating.MonthlyRecord{
				month(2025, time.November, rating.Rated(2450), rating.Unrated, rating.Rated(2100)),
				month(2025, time.October, rating.Rated(2440), rating.Unrated, rating.Rated(2090)),
			},
		},
	})
	require.NoError(t, err)

	contents, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t,
		"Date,FIDE ID,Player Name,Standard,Rapid,Blitz\n"+
			"2025-10-31,12345678,\"Doe, Jane\",2440,,2090\n"+
			"2025-11-30,12345678,\"Doe, Jane\",2450,,2100\n"+
			"2025-11-30,87654321,\"Roe, Richard\",1900,,\n",
		string(contents),
	)

	entries, err := filepath.Glob(filepath.Join(filepath.Dir(store.Path()), "*.tmp"))
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestMergeIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	updates := []Update{{
		PlayerID:   "12345678",
		PlayerName: "Doe, Jane",
		Records: []rating.MonthlyRecord{
			month(2025, time.November, rating.Rated(2450), rating.Unrated, rating.Unrated),
			month(2025, time.October, rating.Rated(2440), rating.Unrated, rating.Unrated),
		},
	}}

	require.NoError(t, store.Merge(ctx, updates))
	once, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	require.NoError(t, store.Merge(ctx, updates))
	twice, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	require.Equal(t, string(once), string(twice))
}

func TestMergeLastWriterWinsAndPreserves(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Merge(ctx, []Update{
		{
			PlayerID:   "12345678",
			PlayerName: "Doe, Jane",
			Records: []rating.MonthlyRecord{
				month(2025, time.October, rating.Rated(2440), rating.Unrated, rating.Unrated),
				month(2025, time.September, rating.Rated(2430), rating.Unrated, rating.Unrated),
			},
		},
		{
			PlayerID:   "87654321",
			PlayerName: "Roe, Richard",
			Records: []rating.MonthlyRecord{
				month(2025, time.October, rating.Rated(1900), rating.Unrated, rating.Unrated),
			},
		},
	}))

	require.NoError(t, store.Merge(ctx, []Update{{
		PlayerID:   "12345678",
		PlayerName: "Doe, Jane",
		Records: []rating.MonthlyRecord{
			month(2025, time.November, rating.Rated(2450), rating.Unrated, rating.Unrated),
			month(2025, time.October, rating.Rated(2445), rating.Rated(2200), rating.Unrated),
		},
	}}))

	snapshot := store.Load(ctx)
	expected := Snapshot{
		"12345678": {
			month(2025, time.November, rating.Rated(2450), rating.Unrated, rating.Unrated),
			month(2025, time.October, rating.Rated(2445), rating.Rated(2200), rating.Unrated),
			month(2025, time.September, rating.Rated(2430), rating.Unrated, rating.Unrated),
		},
		"87654321": {
			month(2025, time.October, rating.Rated(1900), rating.Unrated, rating.Unrated),
		},
	}
	require.Empty(t, cmp.Diff(expected, snapshot, ratingCmp))
}

func TestMergeOverUnreadableLedger(t *testing.T) {
	store, tel := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(store.Path(), []byte("not,a,ledger\n"), 0644))

	require.NoError(t, store.Merge(ctx, []Update{{
		PlayerID: "12345678",
		Records: []rating.MonthlyRecord{
			month(2025, time.November, rating.Rated(2450), rating.Unrated, rating.Unrated),
		},
	}}))
	require.Len(t, tel.Reports("warning", report_store_load), 1)
	require.Len(t, store.Load(ctx)["12345678"], 1)
}

func TestMergeKeepsRowsAroundStrayQuotes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	contents := "Date,FIDE ID,Player Name,Standard,Rapid,Blitz\n" +
		"2025-10-31,1111,Bad \"Nick\" Name,2000,,\n" +
		"2025-10-31,2222,\"Doe, Jane\",2100,,\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(contents), 0644))

	require.NoError(t, store.Merge(ctx, []Update{{
		PlayerID:   "3333",
		PlayerName: "New Player",
		Records: []rating.MonthlyRecord{
			month(2025, time.November, rating.Rated(1800), rating.Unrated, rating.Unrated),
		},
	}}))

	snapshot := store.Load(ctx)
	require.Len(t, snapshot, 3)
	require.Equal(t, rating.Rated(2000), snapshot["1111"][0].Standard)
	require.Equal(t, rating.Rated(2100), snapshot["2222"][0].Standard)
	require.Len(t, snapshot["3333"], 1)

	entries := store.Player(ctx, "1111")
	require.Len(t, entries, 1)
	require.Equal(t, "Bad \"Nick\" Name", entries[0].PlayerName)
}

func TestMergeWriteFailure(t *testing.T) {
	tel := telemetry.NewTestingAPI(t)
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	store := NewStore(filepath.Join(blocker, "fide_ratings.csv"), tel)
	err := store.Merge(context.Background(), []Update{{PlayerID: "12345678"}})
	require.Error(t, err)
	require.Len(t, tel.Reports("broken", report_store_merge), 1)
}

func TestPlayer(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.Len(t, store.Player(ctx, "12345678"), 0)

	require.NoError(t, store.Merge(ctx, []Update{
		{
			PlayerID:   "12345678",
			PlayerName: "Doe, Jane",
			Records: []rating.MonthlyRecord{
				month(2025, time.September, rating.Rated(2430), rating.Unrated, rating.Unrated),
				month(2025, time.November, rating.Rated(2450), rating.Unrated, rating.Unrated),
			},
		},
		{
			PlayerID: "87654321",
			Records: []rating.MonthlyRecord{
				month(2025, time.October, rating.Rated(1900), rating.Unrated, rating.Unrated),
			},
		},
	}))

	entries := store.Player(ctx, "12345678")
	require.Len(t, entries, 2)
	require.Equal(t, "Doe, Jane", entries[0].PlayerName)
	require.Equal(t, rating.MonthEnd(2025, time.November), entries[0].Record.Month)
	require.Equal(t, rating.MonthEnd(2025, time.September), entries[1].Record.Month)
}
