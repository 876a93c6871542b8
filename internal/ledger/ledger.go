package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fide-scraper/internal/components/assert"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/internal/rating"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("fide-scraper/ledger")

const (
	report_store_load  = "store.load"
	report_store_merge = "store.merge"
	report_store_rows  = "store.rows"
)

const (
	ColumnDate       = "Date"
	ColumnID         = "FIDE ID"
	ColumnPlayerName = "Player Name"
	ColumnStandard   = "Standard"
	ColumnRapid      = "Rapid"
	ColumnBlitz      = "Blitz"
)

// Header is the header row of the ledger file, in output order.
var Header = []string{
	ColumnDate,
	ColumnID,
	ColumnPlayerName,
	ColumnStandard,
	ColumnRapid,
	ColumnBlitz,
}

// ErrSchema means the file is present but does not carry every required
// column.
var ErrSchema = errors.New("unrecognized ledger schema")

// Entry is one row of the ledger, keyed by (PlayerID, Record.Month).
type Entry struct {
	PlayerID   string
	PlayerName string
	Record     rating.MonthlyRecord
}

// Snapshot is a point in time view of the ledger, every player's records are
// ordered most recent first.
type Snapshot map[string][]rating.MonthlyRecord

// Update is a freshly extracted history for one player.
type Update struct {
	PlayerID   string
	PlayerName string
	Records    []rating.MonthlyRecord
}

// Store is the ledger persisted as a single csv file. Concurrent runs
// against the same file are not supported.
type Store struct {
	path string
	tel  telemetry.API
}

func NewStore(path string, tel telemetry.API) Store {
	assert.NotEmptyStr(path)
	assert.NotNil(tel)
	return Store{
		path: path,
		tel:  telemetry.NewScopedAPI("ledger", tel),
	}
}

func (s Store) Path() string {
	return s.path
}

// Load reads the whole ledger. A missing, unreadable or unrecognized file
// is reported and treated as an empty ledger.
func (s Store) Load(ctx context.Context) Snapshot {
	_, span := tracer.Start(ctx, "Load")
	defer span.End()

	entries := s.readOrEmpty()
	span.SetAttributes(attribute.Int("rows", len(entries)))
	return snapshotOf(entries)
}

// Player lists the entries of one player, most recent first.
func (s Store) Player(ctx context.Context, id string) []Entry {
	_, span := tracer.Start(ctx, "Player")
	defer span.End()

	out := []Entry{}
	for _, e := range s.readOrEmpty() {
		if e.PlayerID == id {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return b.Record.Month.Compare(a.Record.Month)
	})
	return out
}

// Merge upserts every record in `updates` keyed by (player, month), a key
// that already exists takes the new value. Untouched entries are kept. The
// whole ledger is rewritten sorted by player id then date.
func (s Store) Merge(ctx context.Context, updates []Update) error {
	_, span := tracer.Start(ctx, "Merge")
	defer span.End()

	type key struct {
		id    string
		month string
	}

	existing := s.readOrEmpty()
	merged := make(map[key]Entry, len(existing))
	for _, e := range existing {
		merged[key{e.PlayerID, rating.FormatDate(e.Record.Month)}] = e
	}
	for _, u := range updates {
		for _, r := range u.Records {
			merged[key{u.PlayerID, rating.FormatDate(r.Month)}] = Entry{
				PlayerID:   u.PlayerID,
				PlayerName: u.PlayerName,
				Record:     r,
			}
		}
	}

	entries := make([]Entry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sortEntries(entries)

	err := s.write(entries)
	if err != nil {
		s.tel.ReportBroken(report_store_merge, err, s.path)
		return fmt.Errorf("write ledger %s: %w", s.path, err)
	}
	s.tel.ReportCount(report_store_rows, int64(len(entries)))
	span.SetAttributes(attribute.Int("rows", len(entries)))
	return nil
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := strings.Compare(a.PlayerID, b.PlayerID); c != 0 {
			return c
		}
		return a.Record.Month.Compare(b.Record.Month)
	})
}

func snapshotOf(entries []Entry) Snapshot {
	out := Snapshot{}
	for _, e := range entries {
		out[e.PlayerID] = append(out[e.PlayerID], e.Record)
	}
	for id := range out {
		slices.SortStableFunc(out[id], func(a, b rating.MonthlyRecord) int {
			return b.Month.Compare(a.Month)
		})
	}
	return out
}

func (s Store) readOrEmpty() []Entry {
	entries, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		s.tel.ReportDebug("no ledger yet", s.path)
		return nil
	}
	if err != nil {
		s.tel.ReportWarning(report_store_load, err, s.path)
		return nil
	}
	return entries
}

func (s Store) read() ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, s.tel)
}

func decode(r io.Reader, tel telemetry.API) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrSchema)
	}
	if err != nil {
		return nil, err
	}

	columns := map[string]int{}
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range Header {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchema, required)
		}
	}

	entries := []Entry{}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			tel.ReportWarning(report_store_load, fmt.Errorf("skipping malformed row %d: %w", line, err))
			continue
		}
		if err != nil {
			return nil, err
		}

		cell := func(name string) string {
			idx := columns[name]
			if idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		id := cell(ColumnID)
		month, err := rating.ParseDate(cell(ColumnDate))
		if id == "" || err != nil {
			tel.ReportWarning(report_store_load, fmt.Errorf("skipping malformed row %d", line))
			continue
		}

		entries = append(entries, Entry{
			PlayerID:   id,
			PlayerName: cell(ColumnPlayerName),
			Record: rating.MonthlyRecord{
				Month:    month,
				Standard: rating.ParseRating(cell(ColumnStandard)),
				Rapid:    rating.ParseRating(cell(ColumnRapid)),
				Blitz:    rating.ParseRating(cell(ColumnBlitz)),
			},
		})
	}
	return entries, nil
}

func encode(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	err := writer.Write(Header)
	if err != nil {
		return err
	}
	for _, e := range entries {
		err = writer.Write([]string{
			rating.FormatDate(e.Record.Month),
			e.PlayerID,
			e.PlayerName,
			e.Record.Standard.Cell(),
			e.Record.Rapid.Cell(),
			e.Record.Blitz.Cell(),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// write replaces the ledger file through a temporary file in the same
// directory so readers never observe a partial ledger.
func (s Store) write(entries []Entry) error {
	dir := filepath.Dir(s.path)
	if dir != "" {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	err = encode(tmp, entries)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	err = os.Chmod(tmpName, 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
