package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"hrexport/internal/reconcile"
	"hrexport/internal/submission"
	"hrexport/lib/telemetry"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func key(challenge string) submission.Key {
	return submission.Key{Challenge: challenge, Language: "python3"}
}

func entry(challenge, status string) submission.Summary {
	return submission.Summary{
		Challenge: challenge,
		Language:  "python3",
		Name:      challenge,
		Time:      "1 day ago",
		Status:    status,
		Points:    "10",
		CodeUrl:   "code/" + challenge,
	}
}

func done(challenge string) submission.Record {
	return submission.NewComplete(submission.Complete{
		Summary: entry(challenge, "Accepted"),
		Code:    []string{"old"},
	})
}

// fakeSite serves pages from memory, errs are returned in order before the
// page (or detail) itself.
type fakeSite struct {
	pages      [][]submission.Summary
	pageErrs   map[int][]error
	detailErrs map[string][]error
	names      map[string]string

	pagesRead   []int
	detailsRead []string
}

func (f *fakeSite) FetchPage(ctx context.Context, n int) (Page, error) {
	if errs := f.pageErrs[n]; len(errs) > 0 {
		f.pageErrs[n] = errs[1:]
		return Page{}, errs[0]
	}
	f.pagesRead = append(f.pagesRead, n)
	page := Page{Entries: f.pages[n-1]}
	if n == 1 {
		page.TotalPages = len(f.pages)
	}
	return page, nil
}

func (f *fakeSite) FetchDetail(ctx context.Context, locator string) (Detail, error) {
	if errs := f.detailErrs[locator]; len(errs) > 0 {
		f.detailErrs[locator] = errs[1:]
		return Detail{}, errs[0]
	}
	f.detailsRead = append(f.detailsRead, locator)
	return Detail{Code: []string{"code of " + locator}, Name: f.names[locator]}, nil
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func testPolicy() Policy {
	policy := DefaultPolicy()
	policy.Delay = 0
	return policy
}

func newTestCoordinator(site *fakeSite) (Coordinator, *telemetry.MemoryAPI) {
	tel := &telemetry.MemoryAPI{}
	return NewCoordinator(site, site, testPolicy(), tel), tel
}

func TestRerunIsIdempotent(t *testing.T) {
	site := &fakeSite{pages: [][]submission.Summary{
		{entry("c", "Accepted"), entry("b", "Accepted")},
		{entry("a", "Wrong Answer")},
	}}
	coordinator, _ := newTestCoordinator(site)

	first, err := coordinator.Run(context.Background(), submission.Set{}, submission.Set{})
	require.NoError(t, err)
	require.Equal(t, 3, first.Fetched)
	require.False(t, first.Stopped)

	site.pagesRead = nil
	site.detailsRead = nil
	second, err := coordinator.Run(context.Background(), reconcile.Merge(first.Done, first.Records), submission.Set{})
	require.NoError(t, err)
	require.Empty(t, second.Records)
	require.True(t, second.Stopped)
	require.Equal(t, []int{1}, site.pagesRead)
	require.Empty(t, site.detailsRead)
}

func TestFirstSubmissionPerKeyWins(t *testing.T) {
	newest := entry("a", "Accepted")
	newest.Time = "1 hour ago"
	older := entry("a", "Wrong Answer")
	older.Time = "3 days ago"
	older.CodeUrl = "code/a-old"

	site := &fakeSite{pages: [][]submission.Summary{
		{newest, entry("b", "Accepted")},
		{older},
	}}
	coordinator, _ := newTestCoordinator(site)

	result, err := coordinator.Run(context.Background(), submission.Set{}, submission.Set{})
	require.NoError(t, err)
	require.Equal(t, []submission.Key{key("a"), key("b")}, result.Records.Keys())

	kept := result.Records[key("a")].Summary()
	require.Equal(t, "1 hour ago", kept.Time)
	require.Equal(t, "Accepted", kept.Status)
	require.NotContains(t, site.detailsRead, "code/a-old")
	require.Equal(t, 2, result.Discovered)
}

func TestStopsAtFirstKnownSubmission(t *testing.T) {
	site := &fakeSite{pages: [][]submission.Summary{
		{entry("k2", "Accepted"), entry("k3", "Accepted")},
		{entry("k1", "Accepted"), entry("k4", "Accepted")},
		{entry("k5", "Accepted")},
	}}
	coordinator, _ := newTestCoordinator(site)
	known := submission.Set{key("k1"): done("k1")}

	result, err := coordinator.Run(context.Background(), known, submission.Set{})
	require.NoError(t, err)

	require.True(t, result.Stopped)
	require.Equal(t, []int{1, 2}, site.pagesRead)
	require.Equal(t, []submission.Key{key("k2"), key("k3")}, result.Records.Keys())
	require.NotContains(t, result.Records, key("k4"))
	require.Equal(t, known, result.Done)
}

func TestStatusIsNormalized(t *testing.T) {
	site := &fakeSite{pages: [][]submission.Summary{
		{entry("slow", "Terminated due to timeout")},
	}}
	coordinator, _ := newTestCoordinator(site)

	result, err := coordinator.Run(context.Background(), submission.Set{}, submission.Set{})
	require.NoError(t, err)
	require.Equal(t, "Timeout", result.Records[key("slow")].Summary().Status)
}

func TestPendingRecordsAreCompleted(t *testing.T) {
	site := &fakeSite{
		pages: [][]submission.Summary{
			{entry("known", "Accepted")},
		},
		names: map[string]string{"code/pending": "Pending (Corrected)"},
	}
	coordinator, _ := newTestCoordinator(site)

	pending := submission.Set{key("pending"): submission.NewSummary(entry("pending", "Accepted"))}
	result, err := coordinator.Run(
		context.Background(),
		submission.Set{key("known"): done("known")},
		pending,
	)
	require.NoError(t, err)

	record := result.Records[key("pending")]
	require.True(t, record.IsComplete())
	require.Equal(t, "Pending (Corrected)", record.Summary().Name)
	complete, _ := record.Complete()
	require.Equal(t, []string{"code of code/pending"}, complete.Code)

	// the caller's pending set is untouched
	require.False(t, pending[key("pending")].IsComplete())
}

func TestFatalDetailKeepsCompletedRecords(t *testing.T) {
	var entries []submission.Summary
	for _, c := range []string{"n1", "n2", "n3", "n4", "n5"} {
		entries = append(entries, entry(c, "Accepted"))
	}
	broken := errors.New("code viewer markup changed")
	site := &fakeSite{
		pages:      [][]submission.Summary{append(entries, entry("old", "Accepted"))},
		detailErrs: map[string][]error{"code/n3": {broken}},
	}
	coordinator, _ := newTestCoordinator(site)

	fs := afero.NewMemMapFs()
	store := reconcile.NewStore(fs, "state.json", &telemetry.MemoryAPI{})
	baseline := submission.Set{key("old"): done("old")}
	require.NoError(t, store.Save(context.Background(), baseline))

	loaded, _, err := store.Load(context.Background())
	require.NoError(t, err)
	result, err := coordinator.Run(context.Background(), loaded, submission.Set{})
	require.ErrorIs(t, err, broken)
	require.Equal(t, 2, result.Fetched)

	require.NoError(t, store.Guard(loaded).Save(context.Background(), result.Records))

	persisted, pending, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
	require.Equal(t, []submission.Key{key("n1"), key("n2"), key("old")}, persisted.Keys())
}

func TestDetailRetryBounds(t *testing.T) {
	testCases := []struct {
		name     string
		errs     []error
		exhausts Outcome
		attempts int
		warnings int
	}{
		{name: "not ready within bound", errs: repeat(ErrNotReady, 2), warnings: 2},
		{name: "not ready beyond bound", errs: repeat(ErrNotReady, 3), exhausts: OutcomeNotReady, attempts: 3, warnings: 2},
		{name: "timeout within bound", errs: repeat(ErrTimeout, 10), warnings: 10},
		{name: "timeout beyond bound", errs: repeat(ErrTimeout, 11), exhausts: OutcomeTimeout, attempts: 11, warnings: 10},
		{
			name:     "bounds are counted per outcome",
			errs:     append(repeat(ErrNotReady, 2), repeat(context.DeadlineExceeded, 5)...),
			warnings: 7,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			site := &fakeSite{
				pages:      [][]submission.Summary{{entry("a", "Accepted")}},
				detailErrs: map[string][]error{"code/a": test.errs},
			}
			coordinator, tel := newTestCoordinator(site)

			result, err := coordinator.Run(context.Background(), submission.Set{}, submission.Set{})
			require.Len(t, tel.Find("warning", report_coordinator_fetch_detail), test.warnings)

			if test.exhausts == OutcomeOK {
				require.NoError(t, err)
				require.True(t, result.Records[key("a")].IsComplete())
				return
			}

			var exhausted *RetryExhaustedError
			require.True(t, errors.As(err, &exhausted))
			require.Equal(t, test.exhausts, exhausted.Outcome)
			require.Equal(t, test.attempts, exhausted.Attempts)
			require.False(t, result.Records[key("a")].IsComplete())
			require.Len(t, tel.Find("broken", report_coordinator_fetch_detail), 1)
		})
	}
}

func TestPageNotReadyIsRetriedWithoutBound(t *testing.T) {
	site := &fakeSite{
		pages:    [][]submission.Summary{{entry("a", "Accepted")}},
		pageErrs: map[int][]error{1: repeat(fmt.Errorf("pagination missing: %w", ErrNotReady), 50)},
	}
	coordinator, tel := newTestCoordinator(site)

	result, err := coordinator.Run(context.Background(), submission.Set{}, submission.Set{})
	require.NoError(t, err)
	require.Equal(t, 1, result.PagesRead)
	require.Len(t, tel.Find("warning", report_coordinator_fetch_page), 50)
}

func TestPageTimeoutIsBounded(t *testing.T) {
	site := &fakeSite{
		pages:    [][]submission.Summary{{entry("a", "Accepted")}},
		pageErrs: map[int][]error{1: repeat(ErrTimeout, 11)},
	}
	coordinator, _ := newTestCoordinator(site)

	_, err := coordinator.Run(context.Background(), submission.Set{}, submission.Set{})
	var exhausted *RetryExhaustedError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, OutcomeTimeout, exhausted.Outcome)
	require.Contains(t, err.Error(), "connectivity")
}

type cancellingSite struct {
	fakeSite
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingSite) FetchPage(ctx context.Context, n int) (Page, error) {
	c.calls++
	if c.calls == 3 {
		c.cancel()
	}
	return Page{}, ErrNotReady
}

func TestCancelStopsUnboundedRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	site := &cancellingSite{cancel: cancel}
	coordinator := NewCoordinator(site, site, testPolicy(), &telemetry.MemoryAPI{})

	_, err := coordinator.Run(ctx, submission.Set{}, submission.Set{})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, site.calls)
}

type panickingSite struct {
	*fakeSite
	panicOn string
}

func (p panickingSite) FetchDetail(ctx context.Context, locator string) (Detail, error) {
	if locator == p.panicOn {
		panic("detail page crashed")
	}
	return p.fakeSite.FetchDetail(ctx, locator)
}

func TestRunIntoKeepsCompletedRecordsOnPanic(t *testing.T) {
	site := panickingSite{
		fakeSite: &fakeSite{pages: [][]submission.Summary{
			{entry("a", "Accepted"), entry("b", "Accepted"), entry("c", "Accepted")},
		}},
		panicOn: "code/c",
	}
	coordinator := NewCoordinator(site, site, testPolicy(), &telemetry.MemoryAPI{})

	working := submission.Set{}
	require.PanicsWithValue(t, "detail page crashed", func() {
		_, _ = coordinator.RunInto(context.Background(), submission.Set{}, working)
	})

	require.Len(t, working, 3)
	require.True(t, working[key("a")].IsComplete())
	require.True(t, working[key("b")].IsComplete())
	require.False(t, working[key("c")].IsComplete())
}

func TestRunDoesNotModifyPending(t *testing.T) {
	site := &fakeSite{pages: [][]submission.Summary{{entry("a", "Accepted")}}}
	coordinator, _ := newTestCoordinator(site)

	pending := submission.Set{key("b"): submission.NewSummary(entry("b", "Accepted"))}
	result, err := coordinator.Run(context.Background(), submission.Set{}, pending)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	require.Len(t, pending, 1)
	require.False(t, pending[key("b")].IsComplete())
}
