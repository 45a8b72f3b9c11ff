package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/backupd/internal/restore"
	"github.com/kebairia/backupd/internal/retention"
)

var (
	restoreForce  bool
	restoreVerify bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore <nightly|weekly>",
	Short: "Restore the database from a retention slot",
	Long: `restore verifies the artifact in the named slot, asks for explicit
confirmation, and imports it into the live database. With --verify it stops
after the integrity check and touches nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := retention.ParseKind(args[0])
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd.Context(), ConfigFile)
		if err != nil {
			return err
		}

		return rt.newRestore().Run(cmd.Context(), restore.Request{
			Kind:       kind,
			Force:      restoreForce,
			VerifyOnly: restoreVerify,
		})
	},
}

func init() {
	restoreCmd.Flags().
		BoolVar(&restoreForce, "force", false, "skip the interactive confirmation")
	restoreCmd.Flags().
		BoolVar(&restoreVerify, "verify", false, "verify the slot artifact and exit without restoring")
}
