package roster

import (
	"encoding/csv"
	"errors"
	"fide-scraper/internal/components/assert"
	"fide-scraper/internal/components/telemetry"
	"fide-scraper/pkg/textutil"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	report_roster_parse         = "roster.parse"
	report_roster_name_mismatch = "roster.name-mismatch"
)

// NameSimilarityThreshold is the Jaro-Winkler similarity under which a
// scraped name is considered different from the roster's.
const NameSimilarityThreshold = 0.8

// ErrEmpty means the roster has no player at all.
var ErrEmpty = errors.New("input file is empty or contains no valid FIDE IDs")

// Player is one line of the roster. An empty Email means the player opted
// out of notifications.
type Player struct {
	ID    string
	Email string
	Name  string
}

type Roster struct {
	players []Player
	byID    map[string]Player
	tel     telemetry.API
}

// Load reads a roster file, a missing or unreadable file is an error.
func Load(path string, tel telemetry.API) (Roster, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Roster{}, fmt.Errorf("file not found: %s: %w", path, err)
	}
	if errors.Is(err, os.ErrPermission) {
		return Roster{}, fmt.Errorf("permission denied: %s: %w", path, err)
	}
	if err != nil {
		return Roster{}, err
	}
	defer f.Close()

	roster, err := Parse(f, tel)
	if err != nil {
		return Roster{}, fmt.Errorf("read %s: %w", path, err)
	}
	return roster, nil
}

// Parse reads roster lines. Lines starting with # and blank lines are
// ignored. If the first line is a header starting with "FIDE ID", columns are
// located by name, otherwise they are positional: id, email, name. A plain
// list of one id per line is therefore a valid roster.
func Parse(r io.Reader, tel telemetry.API) (Roster, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("roster", tel)

	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	idCol, emailCol, nameCol := 0, 1, 2
	roster := Roster{
		players: []Player{},
		byID:    map[string]Player{},
		tel:     tel,
	}

	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Roster{}, err
		}

		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(row[0]), "FIDE ID") {
				idCol, emailCol, nameCol = -1, -1, -1
				for i, cell := range row {
					switch strings.ToLower(strings.TrimSpace(cell)) {
					case "fide id":
						idCol = i
					case "email":
						emailCol = i
					case "name", "player name":
						nameCol = i
					}
				}
				continue
			}
		}

		cell := func(idx int) string {
			if idx < 0 || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		player := Player{
			ID:    cell(idCol),
			Email: cell(emailCol),
			Name:  cell(nameCol),
		}
		if player.ID == "" && player.Email == "" && player.Name == "" {
			continue
		}
		if _, dup := roster.byID[player.ID]; dup {
			tel.ReportWarning(report_roster_parse, fmt.Errorf("duplicate id %q ignored", player.ID))
			continue
		}
		roster.players = append(roster.players, player)
		roster.byID[player.ID] = player
	}

	if len(roster.players) == 0 {
		return Roster{}, ErrEmpty
	}
	return roster, nil
}

func (r Roster) Len() int {
	return len(r.players)
}

// IDs returns every identifier in file order.
func (r Roster) IDs() []string {
	out := make([]string, len(r.players))
	for i, p := range r.players {
		out[i] = p.ID
	}
	return out
}

func (r Roster) Lookup(id string) (Player, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Email returns the contact address of a player, empty if unknown or opted
// out.
func (r Roster) Email(id string) string {
	p, _ := r.Lookup(id)
	return p.Email
}

// CheckName reports a warning when the roster carries a name for `id` that
// does not resemble `scraped`. It returns false on a mismatch.
func (r Roster) CheckName(id, scraped string) bool {
	p, ok := r.Lookup(id)
	if !ok || p.Name == "" || scraped == "" {
		return true
	}
	similarity := textutil.NameSimilarity(p.Name, scraped)
	if similarity >= NameSimilarityThreshold {
		return true
	}
	r.tel.ReportWarning(
		report_roster_name_mismatch,
		fmt.Errorf("roster name %q does not match %q", p.Name, scraped),
		id,
		similarity,
	)
	return false
}
