package export

import (
	"io"

	"hrexport/internal/submission"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Stats are the totals of one run, printed once it is over.
type Stats struct {
	KnownBefore int
	Discovered  int
	Fetched     int
	PagesRead   int
	Saved       int
	Exported    int
	// empty when no spreadsheet was written
	Output string
}

func Summary(w io.Writer, stats Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"", "Count"})
	t.AppendRows([]table.Row{
		{"known before this run", stats.KnownBefore},
		{"new submissions", stats.Discovered},
		{"code fetched", stats.Fetched},
		{"pages read", stats.PagesRead},
		{"saved", stats.Saved},
		{"exported (accepted)", stats.Exported},
	})
	if stats.Output != "" {
		t.AppendFooter(table.Row{"spreadsheet", stats.Output})
	}
	t.SetStyle(table.StyleRounded)
	// paths are case sensitive
	t.Style().Format.Footer = text.FormatDefault
	t.Render()
}

// Status lists the persisted records, one row per key.
func Status(w io.Writer, records submission.Set) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Challenge", "Language", "Status", "Points", "Lines"})
	for _, key := range records.Keys() {
		record := records[key]
		summary := record.Summary()
		var lines any = "-"
		if complete, ok := record.Complete(); ok {
			lines = len(complete.Code)
		}
		t.AppendRow(table.Row{key.Challenge, key.Language, summary.Status, summary.Points, lines})
	}
	t.AppendFooter(table.Row{"", "", "", "total", len(records)})
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.Render()
}
