package reconcile

import (
	"context"
	"errors"
	"testing"

	"hrexport/internal/submission"
	"hrexport/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const storePath = "state/hackerrank_submissions_alice.json"

func newTestStore(t testing.TB, contents string) (Store, afero.Fs, *telemetry.MemoryAPI) {
	fs := afero.NewMemMapFs()
	if contents != "" {
		err := afero.WriteFile(fs, storePath, []byte(contents), 0o644)
		if err != nil {
			t.Fatal(err)
		}
	}
	tel := &telemetry.MemoryAPI{}
	return NewStore(fs, storePath, tel), fs, tel
}

func summaryOf(challenge, language, status string) submission.Summary {
	return submission.Summary{
		Challenge: challenge,
		Language:  language,
		Name:      challenge + " name",
		Time:      "2 years ago",
		Status:    status,
		Points:    "10",
		CodeUrl:   "https://www.hackerrank.com/challenges/" + challenge + "/submissions/code/1",
	}
}

func completeOf(challenge, language string, code ...string) submission.Record {
	if code == nil {
		code = []string{}
	}
	return submission.NewComplete(submission.Complete{
		Summary: summaryOf(challenge, language, "Accepted"),
		Code:    code,
	})
}

func compareSets(t testing.TB, expected, actual submission.Set) {
	t.Helper()
	require.Equal(t, expected.Keys(), actual.Keys())
	for key, e := range expected {
		a := actual[key]
		require.Equal(t, e.Stage(), a.Stage(), key.Encode())
		if diff := cmp.Diff(e.Summary(), a.Summary()); diff != "" {
			t.Fatal(key.Encode(), diff)
		}
		ec, _ := e.Complete()
		ac, _ := a.Complete()
		if diff := cmp.Diff(ec.Code, ac.Code); diff != "" {
			t.Fatal(key.Encode(), diff)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	store, _, _ := newTestStore(t, "")

	done, pending, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, done)
	require.Empty(t, pending)
	require.NotNil(t, done)
	require.NotNil(t, pending)
}

func TestLoadPartitionsByCompleteness(t *testing.T) {
	store, _, tel := newTestStore(t, `{
		"repeated-string|python3": ["Repeated String", "1 year ago", "Accepted", "20", "https://www.hackerrank.com/rs/code"],
		"solve-me-first|go": ["Solve Me First", "2 years ago", "Accepted", "1", "https://www.hackerrank.com/smf/code", ["package main", "", "func main() {}"]]
	}`)

	done, pending, err := store.Load(context.Background())
	require.NoError(t, err)

	pendingKey := submission.Key{Challenge: "repeated-string", Language: "python3"}
	doneKey := submission.Key{Challenge: "solve-me-first", Language: "go"}
	require.Equal(t, []submission.Key{pendingKey}, pending.Keys())
	require.Equal(t, []submission.Key{doneKey}, done.Keys())

	require.Equal(t, submission.StageSummary, pending[pendingKey].Stage())
	require.Equal(t, "Repeated String", pending[pendingKey].Summary().Name)

	complete, ok := done[doneKey].Complete()
	require.True(t, ok)
	require.Equal(t, []string{"package main", "", "func main() {}"}, complete.Code)
	require.Equal(t, "go", complete.Language)
	require.Equal(t, "solve-me-first", complete.Challenge)

	require.Len(t, tel.Find("warning", report_store_load), 1)
}

func TestLoadCorrupt(t *testing.T) {
	testCases := []struct {
		name     string
		contents string
	}{
		{name: "not json", contents: `{"broken": `},
		{name: "not an object", contents: `["a", "b"]`},
		{name: "key without separator", contents: `{"no-separator": ["a", "b", "c", "d", "e"]}`},
		{name: "too few fields", contents: `{"a|go": ["a", "b", "c", "d"]}`},
		{name: "too many fields", contents: `{"a|go": ["a", "b", "c", "d", "e", [], "g"]}`},
		{name: "code is not a list", contents: `{"a|go": ["a", "b", "c", "d", "e", "f"]}`},
		{name: "field is not text", contents: `{"a|go": ["a", 1, "c", "d", "e"]}`},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			store, _, tel := newTestStore(t, test.contents)
			_, _, err := store.Load(context.Background())
			require.Error(t, err)

			var corrupt *CorruptStoreError
			require.True(t, errors.As(err, &corrupt))
			require.Equal(t, storePath, corrupt.Path)
			require.Len(t, tel.Find("broken", report_store_load), 1)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	store, _, _ := newTestStore(t, "")
	records := submission.Set{
		{Challenge: "a", Language: "go"}:      completeOf("a", "go", "package main"),
		{Challenge: "b", Language: "python3"}: completeOf("b", "python3"),
	}

	require.NoError(t, store.Save(context.Background(), records))

	done, pending, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
	compareSets(t, records, done)
}

func TestSaveDropsSummaryRecords(t *testing.T) {
	store, fs, tel := newTestStore(t, "")
	records := submission.Set{
		{Challenge: "a", Language: "go"}:      completeOf("a", "go", "x := 1"),
		{Challenge: "b", Language: "python3"}: submission.NewSummary(summaryOf("b", "python3", "Accepted")),
	}

	require.NoError(t, store.Save(context.Background(), records))

	contents, err := afero.ReadFile(fs, storePath)
	require.NoError(t, err)
	expected := `{
  "a|go": [
    "a name",
    "2 years ago",
    "Accepted",
    "10",
    "https://www.hackerrank.com/challenges/a/submissions/code/1",
    [
      "x := 1"
    ]
  ]
}
`
	require.Equal(t, expected, string(contents))
	require.Len(t, tel.Find("warning", report_store_save), 1)
}

func TestSaveWithCancelledContext(t *testing.T) {
	store, _, _ := newTestStore(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := submission.Set{{Challenge: "a", Language: "go"}: completeOf("a", "go")}
	require.NoError(t, store.Save(ctx, records))

	done, _, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, done, 1)
}
