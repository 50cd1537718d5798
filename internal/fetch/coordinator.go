// Package fetch walks the submission list newest first until it reaches a
// submission completed by a previous run, then reads the code of every
// submission that is still missing it.
package fetch

import (
	"context"
	"fmt"

	"hrexport/internal/submission"
	"hrexport/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("hrexport/internal/fetch")

const (
	report_coordinator_fetch_page   = "coordinator.fetch-page"
	report_coordinator_fetch_detail = "coordinator.fetch-detail"
)

// Page is one page of the submission list, TotalPages is only reported by
// the first page.
type Page struct {
	Entries    []submission.Summary
	TotalPages int
}

// Detail is what a submission's own page adds to its summary.
type Detail struct {
	Code []string
	// corrected display text of the challenge, may be empty
	Name string
}

type PageSource interface {
	FetchPage(ctx context.Context, n int) (Page, error)
}

type DetailSource interface {
	FetchDetail(ctx context.Context, locator string) (Detail, error)
}

type Coordinator struct {
	pages   PageSource
	details DetailSource
	policy  Policy
	tel     telemetry.API
}

func NewCoordinator(pages PageSource, details DetailSource, policy Policy, tel telemetry.API) Coordinator {
	return Coordinator{
		pages:   pages,
		details: details,
		policy:  policy,
		tel:     telemetry.NewScopedAPI("fetch", tel),
	}
}

type Result struct {
	// Records is the working set: carried over pending records plus the ones
	// discovered by this run.
	Records submission.Set
	// Done is the done-set the run was given, untouched.
	Done submission.Set
	// Stopped is true when the walk ended on an already known submission.
	Stopped    bool
	PagesRead  int
	Discovered int
	Fetched    int
}

// Run never modifies `done` or `pending`. When it fails, the returned Result
// still holds everything completed before the failure.
func (c Coordinator) Run(ctx context.Context, done, pending submission.Set) (Result, error) {
	return c.RunInto(ctx, done, pending.Clone())
}

// RunInto is Run updating `working` in place, so the caller still holds every
// completed record if a source panics halfway through.
func (c Coordinator) RunInto(ctx context.Context, done, working submission.Set) (Result, error) {
	ctx, span := tracer.Start(ctx, "Coordinator:Run")
	defer span.End()

	result := Result{
		Records: working,
		Done:    done,
	}

	err := c.collect(ctx, &result)
	if err == nil {
		err = c.resolve(ctx, &result)
	}

	span.SetAttributes(
		attribute.Int("pages_read", result.PagesRead),
		attribute.Int("discovered", result.Discovered),
		attribute.Int("fetched", result.Fetched),
		attribute.Bool("stopped", result.Stopped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return result, err
	}
	return result, nil
}

func (c Coordinator) collect(ctx context.Context, result *Result) error {
	total := 1
	for n := 1; n <= total; n++ {
		what := fmt.Sprintf("submission page %d", n)
		c.tel.ReportDebug("reading page", n, total)

		page, err := retry(ctx, c.tel, report_coordinator_fetch_page, what, c.policy.Page, c.policy.Delay,
			func(ctx context.Context) (Page, error) {
				return c.pages.FetchPage(ctx, n)
			},
		)
		if err != nil {
			c.tel.ReportBroken(report_coordinator_fetch_page, err, n)
			return err
		}
		result.PagesRead++

		if n == 1 && page.TotalPages > 0 {
			total = page.TotalPages
		}

		for _, entry := range page.Entries {
			entry.Status = submission.NormalizeStatus(entry.Status)
			key := entry.Key()

			if _, known := result.Done[key]; known {
				// everything from here on is older and was read by a previous run
				c.tel.ReportDebug("reached known submission", key.Encode(), n)
				result.Stopped = true
				return nil
			}
			if _, seen := result.Records[key]; seen {
				continue
			}
			result.Records[key] = submission.NewSummary(entry)
			result.Discovered++
		}
	}
	return nil
}

func (c Coordinator) resolve(ctx context.Context, result *Result) error {
	for _, key := range result.Records.Keys() {
		record := result.Records[key]
		if record.IsComplete() {
			continue
		}
		locator := record.Summary().CodeUrl
		what := fmt.Sprintf("code of %s", key.Encode())

		detail, err := retry(ctx, c.tel, report_coordinator_fetch_detail, what, c.policy.Detail, c.policy.Delay,
			func(ctx context.Context) (Detail, error) {
				return c.details.FetchDetail(ctx, locator)
			},
		)
		if err != nil {
			c.tel.ReportBroken(report_coordinator_fetch_detail, err, key.Encode(), locator)
			return err
		}

		result.Records[key] = record.WithCode(detail.Code, detail.Name)
		result.Fetched++
	}
	c.tel.ReportCount("coordinator.fetched", int64(result.Fetched))
	return nil
}
