package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// Report is a single report captured by TestingAPI.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// TestingAPI records every report so tests can assert on them, reports are
// also forwarded to t.Log.
type TestingAPI struct {
	t       testing.TB
	mutex   sync.Mutex
	reports []Report
}

func NewTestingAPI(t testing.TB) *TestingAPI {
	return &TestingAPI{t: t}
}

func (a *TestingAPI) record(kind, id string, params []any) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.reports = append(a.reports, Report{Kind: kind, ID: id, Params: params})
	a.t.Log(kind, id, fmt.Sprint(params...))
}

func (a *TestingAPI) ReportBroken(id string, params ...any) {
	a.record("broken", id, params)
}

func (a *TestingAPI) ReportWarning(id string, params ...any) {
	a.record("warning", id, params)
}

func (a *TestingAPI) ReportDebug(msg string, params ...any) {
	a.record("debug", msg, params)
}

func (a *TestingAPI) ReportCount(id string, count int64) {
	a.record("count", id, []any{count})
}

// Reports returns the reports of a given kind whose id ends with `suffix`.
func (a *TestingAPI) Reports(kind, suffix string) []Report {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := []Report{}
	for _, r := range a.reports {
		if r.Kind == kind && strings.HasSuffix(r.ID, suffix) {
			out = append(out, r)
		}
	}
	return out
}
