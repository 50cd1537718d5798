// Package service runs one scrape: it loads what previous runs saved, walks
// the submission list for anything new, persists the result on every exit
// path and writes the spreadsheet.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hrexport/internal/assert"
	"hrexport/internal/chrono"
	"hrexport/internal/export"
	"hrexport/internal/fetch"
	"hrexport/internal/reconcile"
	"hrexport/internal/submission"
	"hrexport/lib/telemetry"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("hrexport/internal/service")

const (
	report_service_load   = "service.load"
	report_service_login  = "service.login"
	report_service_fetch  = "service.fetch"
	report_service_save   = "service.save"
	report_service_export = "service.export"
)

const (
	EnvUser     = "HACKERRANK_USER"
	EnvPassword = "HACKERRANK_PWD"
)

var ErrMissingCredentials = errors.New("missing credentials")

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("%w: Define env. var. with Hackerrank user name (%s=...)", ErrMissingCredentials, EnvUser)
	}
	if c.Password == "" {
		return fmt.Errorf("%w: Define env. var. with Hackerrank password (%s=...)", ErrMissingCredentials, EnvPassword)
	}
	return nil
}

// CredentialsFromEnv reads the credentials from the environment, it does not
// validate them.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Username: os.Getenv(EnvUser),
		Password: os.Getenv(EnvPassword),
	}
}

func StatePath(dir, username string) string {
	return filepath.Join(dir, fmt.Sprintf("hackerrank_submissions_%s.json", username))
}

func OutputPath(dir, username string) string {
	return filepath.Join(dir, fmt.Sprintf("hackerrank_submissions_%s.xlsx", username))
}

// Site is everything a run needs from hackerrank.
//
// note: fault injection point
type Site interface {
	Login(ctx context.Context, username, password string) error
	fetch.PageSource
	fetch.DetailSource
}

type Options struct {
	// RunId identifies the run in logs and traces, generated when empty.
	RunId       string
	Credentials Credentials
	StateDir    string
	OutDir      string
	// used to build challenge links of records that were saved without one
	BaseUrl string
	Policy  fetch.Policy
	// SkipExport leaves the spreadsheet alone, the state file is still saved.
	SkipExport bool
}

type Report struct {
	RunId    string
	Started  time.Time
	Finished time.Time

	KnownBefore int
	Result      fetch.Result
	// Saved is the number of records in the state file after the run.
	Saved    int
	Exported int
	Output   string
}

func (r Report) Stats() export.Stats {
	return export.Stats{
		KnownBefore: r.KnownBefore,
		Discovered:  r.Result.Discovered,
		Fetched:     r.Result.Fetched,
		PagesRead:   r.Result.PagesRead,
		Saved:       r.Saved,
		Exported:    r.Exported,
		Output:      r.Output,
	}
}

type Runner struct {
	site  Site
	fs    afero.Fs
	clock chrono.TimeAPI
	tel   telemetry.API
}

type runnerConfig struct {
	clock chrono.TimeAPI
	tel   telemetry.API
}

type Option func(cfg *runnerConfig)

func WithClock(clock chrono.TimeAPI) Option {
	return func(cfg *runnerConfig) {
		cfg.clock = clock
	}
}

func WithTelemetry(tel telemetry.API) Option {
	return func(cfg *runnerConfig) {
		cfg.tel = tel
	}
}

func NewRunner(site Site, fs afero.Fs, options ...Option) Runner {
	assert.NotNil(site, "site")
	assert.NotNil(fs, "filesystem")

	cfg := runnerConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	r := Runner{
		site:  site,
		fs:    fs,
		clock: chrono.NewStandardTime(),
		tel:   telemetry.SlogAPI{},
	}
	if cfg.clock != nil {
		r.clock = cfg.clock
	}
	if cfg.tel != nil {
		r.tel = cfg.tel
	}
	r.tel = telemetry.NewScopedAPI("service", r.tel)
	return r
}

// Run performs one incremental scrape. Once the state file has been loaded,
// it is saved exactly once however Run exits: success, error, cancellation
// or panic. A state file that cannot be read is never overwritten.
func (r Runner) Run(ctx context.Context, opts Options) (report Report, err error) {
	ctx, span := tracer.Start(ctx, "Runner:Run")
	defer span.End()

	report.RunId = opts.RunId
	if report.RunId == "" {
		report.RunId = uuid.NewString()
	}
	report.Started = r.clock.Now()
	span.SetAttributes(attribute.String("run_id", report.RunId))
	defer func() {
		report.Finished = r.clock.Now()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "run failed")
		}
	}()

	err = opts.Credentials.Validate()
	if err != nil {
		return report, err
	}
	username := opts.Credentials.Username

	store := reconcile.NewStore(r.fs, StatePath(opts.StateDir, username), r.tel)
	done, pending, err := store.Load(ctx)
	if err != nil {
		r.tel.ReportBroken(report_service_load, err, report.RunId)
		return report, err
	}
	report.KnownBefore = len(done)
	r.tel.ReportDebug("loaded state", report.RunId, store.Path(), len(done), len(pending))

	guard := store.Guard(done)
	// owned here so the deferred save sees records completed before a panic
	working := pending.Clone()
	saveAttempted := false
	defer func() {
		if saveAttempted {
			return
		}
		saveErr := guard.Save(ctx, working)
		if saveErr != nil {
			r.tel.ReportBroken(report_service_save, saveErr, report.RunId)
			err = errors.Join(err, fmt.Errorf("save state: %w", saveErr))
			return
		}
		report.Saved = reconcile.Merge(done, working).CountStage(submission.StageComplete)
	}()

	err = r.site.Login(ctx, username, opts.Credentials.Password)
	if err != nil {
		r.tel.ReportBroken(report_service_login, err, report.RunId)
		return report, err
	}

	coordinator := fetch.NewCoordinator(r.site, r.site, opts.Policy, r.tel)
	result, err := coordinator.RunInto(ctx, done, working)
	report.Result = result
	if err != nil {
		r.tel.ReportBroken(report_service_fetch, err, report.RunId)
		return report, err
	}

	saveAttempted = true
	err = guard.Save(ctx, result.Records)
	if err != nil {
		r.tel.ReportBroken(report_service_save, err, report.RunId)
		return report, fmt.Errorf("save state: %w", err)
	}
	merged := reconcile.Merge(done, result.Records)
	report.Saved = merged.CountStage(submission.StageComplete)

	if opts.SkipExport {
		return report, nil
	}
	rows := export.Rows(merged, opts.BaseUrl)
	output := OutputPath(opts.OutDir, username)
	err = export.WriteFile(r.fs, output, rows)
	if err != nil {
		r.tel.ReportBroken(report_service_export, err, report.RunId, output)
		return report, err
	}
	report.Exported = len(rows)
	report.Output = output
	r.tel.ReportCount("service.exported", int64(len(rows)))

	return report, nil
}
