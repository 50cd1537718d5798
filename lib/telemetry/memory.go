package telemetry

import (
	"strings"
	"sync"
)

type Report struct {
	Kind   string
	Id     string
	Params []any
}

// MemoryAPI records every report, it is meant for asserting telemetry in tests.
type MemoryAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func (m *MemoryAPI) add(kind, id string, params []any) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reports = append(m.reports, Report{Kind: kind, Id: id, Params: params})
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.add("broken", id, params)
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.add("warning", id, params)
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.add("debug", msg, params)
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.add("count", id, []any{count})
}

// Find returns all the reports of a kind whose id ends with the given suffix.
func (m *MemoryAPI) Find(kind, idSuffix string) []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []Report
	for _, r := range m.reports {
		if r.Kind == kind && strings.HasSuffix(r.Id, idSuffix) {
			out = append(out, r)
		}
	}
	return out
}
