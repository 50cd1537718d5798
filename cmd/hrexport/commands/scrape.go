package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"hrexport/internal/export"
	"hrexport/internal/scrapers/hackerrank"
	"hrexport/internal/service"
	"hrexport/lib/serviceutil"
	"hrexport/lib/telemetry"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	dumpHttp string
	noExport bool
)

func init() {
	scrapeCmd.Flags().StringVar(&dumpHttp, "dump-http", "", "Write every HTTP exchange to a file in this directory.")
	scrapeCmd.Flags().BoolVar(&noExport, "no-export", false, "Only update the state file, leave the spreadsheet alone.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--state <dir>] [--out <dir>] [--dump-http <dir>] [--no-export]",
	Short: "Fetches submissions newer than the last run, saves them and writes the spreadsheet.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		credentials := service.CredentialsFromEnv()
		err := credentials.Validate()
		if err != nil {
			serviceutil.Fatal("missing credentials", err)
		}

		otel, err := telemetry.Setup(ctx, "hrexport", cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := otel.Shutdown(ctx)
			if err != nil {
				slog.Warn("failed to shutdown telemetry", "err", err)
			}
		}()

		runId := uuid.NewString()
		meter := telemetry.Meter("hrexport")
		tel := telemetry.NewMeterAPI(telemetry.SlogAPI{Attrs: []any{"run_id", runId}}, meter)
		if otel.MeterProvider != nil {
			stopPerfStats := telemetry.InstrumentPerfStats(ctx, meter, 30*time.Second, tel)
			defer stopPerfStats()
		}

		timeout, err := cfg.RequestTimeout()
		if err != nil {
			serviceutil.Fatal("invalid config", err)
		}
		policy, err := cfg.Policy()
		if err != nil {
			serviceutil.Fatal("invalid config", err)
		}

		opts := hackerrank.ClientOptions{
			BaseUrl:           cfg.BaseUrl,
			Timeout:           timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			CloudflareBypass:  *cfg.CloudflareBypass,
		}
		if dumpHttp != "" {
			output, err := telemetry.NewFilesystemOutput(dumpHttp)
			if err != nil {
				serviceutil.Fatal("failed to create http dump directory", err)
			}
			opts.Dump = output
		}
		client, err := hackerrank.NewClient(opts, tel)
		if err != nil {
			serviceutil.Fatal("failed to initialize hackerrank client", err)
		}

		slog.Info("scraping submissions", "username", credentials.Username, "run_id", runId)

		runner := service.NewRunner(client, afero.NewOsFs(), service.WithTelemetry(tel))
		report, err := runner.Run(ctx, service.Options{
			RunId:       runId,
			Credentials: credentials,
			StateDir:    cfg.StateDir,
			OutDir:      cfg.OutDir,
			BaseUrl:     cfg.BaseUrl,
			Policy:      policy,
			SkipExport:  noExport,
		})
		export.Summary(os.Stdout, report.Stats())
		if err != nil {
			serviceutil.Fatal("scrape failed, everything fetched so far has been saved", err)
		}

		slog.Info("scrape finished", "seconds", report.Finished.Sub(report.Started).Seconds())
	},
}
