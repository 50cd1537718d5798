package telemetry

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

const report_meter_gauge = "meter.gauge"

var invalidInstrumentChars = regexp.MustCompile(`[^A-Za-z0-9_./-]`)

// instrumentName turns a scoped report id, ex. "service: store: store.done",
// into a valid instrument name, "service.store.store.done".
func instrumentName(id string) string {
	name := strings.ReplaceAll(id, ": ", ".")
	name = invalidInstrumentChars.ReplaceAllString(name, "_")
	if name == "" || !isLetter(name[0]) {
		name = "count." + name
	}
	return name
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// MeterAPI forwards every report to another API and additionally records
// counts as gauges, one per report id.
type MeterAPI struct {
	API
	meter  metric.Meter
	gauges sync.Map
}

func NewMeterAPI(inner API, meter metric.Meter) *MeterAPI {
	return &MeterAPI{API: inner, meter: meter}
}

func (m *MeterAPI) gauge(id string) (metric.Int64Gauge, error) {
	if g, ok := m.gauges.Load(id); ok {
		return g.(metric.Int64Gauge), nil
	}
	g, err := m.meter.Int64Gauge(instrumentName(id))
	if err != nil {
		return nil, err
	}
	actual, _ := m.gauges.LoadOrStore(id, g)
	return actual.(metric.Int64Gauge), nil
}

func (m *MeterAPI) ReportCount(id string, count int64) {
	m.API.ReportCount(id, count)

	g, err := m.gauge(id)
	if err != nil {
		m.API.ReportWarning(report_meter_gauge, id, err)
		return
	}
	g.Record(context.Background(), count)
}
