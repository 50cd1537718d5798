// Package reconcile persists the submissions completed by previous runs and
// merges them with the ones found by the current run.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"hrexport/internal/submission"
	"hrexport/lib/fsutil"
	"hrexport/lib/telemetry"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("hrexport/internal/reconcile")

const (
	report_store_load = "store.load"
	report_store_save = "store.save"
)

const (
	summaryFields  = 5
	completeFields = 6
)

// CorruptStoreError means the persisted file exists but cannot be understood,
// resuming from it is unsafe.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt submission store %s: %s", e.Path, e.Err.Error())
}

func (e *CorruptStoreError) Unwrap() error {
	return e.Err
}

type Store struct {
	fs   afero.Fs
	path string
	tel  telemetry.API
}

func NewStore(fs afero.Fs, path string, tel telemetry.API) Store {
	return Store{
		fs:   fs,
		path: path,
		tel:  telemetry.NewScopedAPI("reconcile", tel),
	}
}

func (s Store) Path() string {
	return s.path
}

func decodeValue(raw json.RawMessage) (submission.Summary, []string, bool, error) {
	var fields []json.RawMessage
	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return submission.Summary{}, nil, false, err
	}
	if len(fields) != summaryFields && len(fields) != completeFields {
		return submission.Summary{}, nil, false, fmt.Errorf("expected %d or %d fields, got %d", summaryFields, completeFields, len(fields))
	}

	text := make([]string, summaryFields)
	for i := 0; i < summaryFields; i++ {
		err := json.Unmarshal(fields[i], &text[i])
		if err != nil {
			return submission.Summary{}, nil, false, fmt.Errorf("field %d: %w", i, err)
		}
	}
	summary := submission.Summary{
		Name:    text[0],
		Time:    text[1],
		Status:  text[2],
		Points:  text[3],
		CodeUrl: text[4],
	}
	if len(fields) == summaryFields {
		return summary, nil, false, nil
	}

	var code []string
	err = json.Unmarshal(fields[summaryFields], &code)
	if err != nil {
		return submission.Summary{}, nil, false, fmt.Errorf("code field: %w", err)
	}
	if code == nil {
		code = []string{}
	}
	return summary, code, true, nil
}

// Load reads the persisted records, complete records go to `done` and
// anything unfinished goes to `pending` to be attempted again.
// A missing file yields two empty sets.
func (s Store) Load(ctx context.Context) (done, pending submission.Set, err error) {
	_, span := tracer.Start(ctx, "Store:Load")
	defer span.End()
	span.SetAttributes(attribute.String("path", s.path))

	done = submission.Set{}
	pending = submission.Set{}

	contents, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.tel.ReportDebug("no store found, starting from scratch", s.path)
		return done, pending, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read store")
		s.tel.ReportBroken(report_store_load, err, s.path)
		return nil, nil, fmt.Errorf("read submission store: %w", err)
	}

	corrupt := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, "corrupt store")
		s.tel.ReportBroken(report_store_load, err, s.path)
		return &CorruptStoreError{Path: s.path, Err: err}
	}

	var raw map[string]json.RawMessage
	err = json.Unmarshal(contents, &raw)
	if err != nil {
		return nil, nil, corrupt(err)
	}

	for encoded, value := range raw {
		key, err := submission.ParseKey(encoded)
		if err != nil {
			return nil, nil, corrupt(err)
		}
		summary, code, complete, err := decodeValue(value)
		if err != nil {
			return nil, nil, corrupt(fmt.Errorf("%s: %w", encoded, err))
		}
		summary.Challenge = key.Challenge
		summary.Language = key.Language

		if !complete {
			pending[key] = submission.NewSummary(summary)
			continue
		}
		done[key] = submission.NewComplete(submission.Complete{
			Summary: summary,
			Code:    code,
		})
	}

	span.SetAttributes(
		attribute.Int("done", len(done)),
		attribute.Int("pending", len(pending)),
	)
	s.tel.ReportCount("store.done", int64(len(done)))
	if len(pending) > 0 {
		s.tel.ReportWarning(report_store_load, "unfinished records will be fetched again", len(pending))
	}
	return done, pending, nil
}

func encode(records submission.Set) ([]byte, []submission.Key, error) {
	out := map[string][]any{}
	var dropped []submission.Key
	for _, key := range records.Keys() {
		complete, ok := records[key].Complete()
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		code := complete.Code
		if code == nil {
			code = []string{}
		}
		out[key.Encode()] = []any{
			complete.Name,
			complete.Time,
			complete.Status,
			complete.Points,
			complete.CodeUrl,
			code,
		}
	}

	buff := bytes.NewBuffer(nil)
	encoder := json.NewEncoder(buff)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	err := encoder.Encode(out)
	if err != nil {
		return nil, nil, err
	}
	return buff.Bytes(), dropped, nil
}

// Save replaces the persisted file with every complete record in `records`,
// summary records are never written.
//
// Save ignores cancellation of ctx since it runs on abort paths.
func (s Store) Save(ctx context.Context, records submission.Set) error {
	_, span := tracer.Start(context.WithoutCancel(ctx), "Store:Save")
	defer span.End()
	span.SetAttributes(attribute.String("path", s.path))

	serialized, dropped, err := encode(records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to serialize records")
		s.tel.ReportBroken(report_store_save, err)
		return fmt.Errorf("serialize submission store: %w", err)
	}
	if len(dropped) > 0 {
		s.tel.ReportWarning(report_store_save, "unfinished records were not saved", len(dropped))
	}

	err = fsutil.WriteFileAtomic(s.fs, s.path, serialized)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write store")
		s.tel.ReportBroken(report_store_save, err, s.path)
		return fmt.Errorf("write submission store: %w", err)
	}

	saved := len(records) - len(dropped)
	span.SetAttributes(attribute.Int("saved", saved))
	s.tel.ReportCount("store.saved", int64(saved))
	return nil
}
