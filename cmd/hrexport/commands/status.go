package commands

import (
	"os"

	"hrexport/internal/export"
	"hrexport/internal/reconcile"
	"hrexport/internal/service"
	"hrexport/lib/serviceutil"
	"hrexport/lib/telemetry"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [--state <dir>]",
	Short: "Lists the submissions in the saved state.",
	Run: func(cmd *cobra.Command, args []string) {
		username := requireUsername()

		store := reconcile.NewStore(afero.NewOsFs(), service.StatePath(cfg.StateDir, username), telemetry.SlogAPI{})
		done, pending, err := store.Load(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to load state", err)
		}
		for key, record := range pending {
			done[key] = record
		}
		export.Status(os.Stdout, done)
	},
}
