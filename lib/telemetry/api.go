package telemetry

import (
	"fmt"
)

// API is what every component reports through. Components never log
// directly, so tests can assert on reports with MemoryAPI and the CLI can
// route them to slog and OpenTelemetry.
//
// Report ids name the component and method that reported, ex.
// `client.fetch-page`: lowercase, dot between component and method, dashes
// inside a method name. Details go in params or in the wrapped error.
type API interface {
	// ReportBroken is for failures that end the current operation.
	ReportBroken(id string, params ...any)
	// ReportWarning is for recoverable trouble: a retry, a skipped row, a
	// dropped record.
	ReportWarning(id string, params ...any)
	// ReportDebug is progress output, hidden unless debug logging is on.
	ReportDebug(msg string, params ...any)
	// ReportCount records the latest value of a total, ex. records saved.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with a package name, "fetch: coordinator.fetch-page".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
