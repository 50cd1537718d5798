package commands

import (
	"log/slog"
	"os"
	"strings"

	"hrexport/internal/export"
	"hrexport/internal/reconcile"
	"hrexport/internal/service"
	"hrexport/lib/serviceutil"
	"hrexport/lib/telemetry"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(exportCmd)
}

func requireUsername() string {
	username := strings.TrimSpace(os.Getenv(service.EnvUser))
	if username == "" {
		err := service.Credentials{}.Validate()
		serviceutil.Fatal("missing credentials", err)
	}
	return username
}

var exportCmd = &cobra.Command{
	Use:   "export [--state <dir>] [--out <dir>]",
	Short: "Rewrites the spreadsheet from the saved state without touching the network.",
	Run: func(cmd *cobra.Command, args []string) {
		username := requireUsername()
		fs := afero.NewOsFs()
		tel := telemetry.SlogAPI{}

		store := reconcile.NewStore(fs, service.StatePath(cfg.StateDir, username), tel)
		done, _, err := store.Load(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to load state", err)
		}

		rows := export.Rows(done, cfg.BaseUrl)
		output := service.OutputPath(cfg.OutDir, username)
		err = export.WriteFile(fs, output, rows)
		if err != nil {
			serviceutil.Fatal("failed to write spreadsheet", err)
		}
		slog.Info("spreadsheet written", "path", output, "rows", len(rows))
	},
}
