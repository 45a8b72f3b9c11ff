package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kebairia/backupd/internal/retention"
)

var backupCmd = &cobra.Command{
	Use:   "backup <nightly|weekly>",
	Short: "Run one backup into the named retention slot",
	Long: `backup runs a single pipeline pass for the given kind: export the
database, validate, compress, and commit into the slot. This is the entry
point an external scheduler invokes.`,
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

		return rt.newPipeline().Run(cmd.Context(), kind)
	},
}
