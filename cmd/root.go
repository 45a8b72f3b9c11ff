package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kebairia/backupd/internal/logger"
)

// ConfigFile is the path to the YAML configuration.
var (
	ConfigFile string
	// rootCmd is the base command for backupd.
	rootCmd = &cobra.Command{
		Use:   "backupd",
		Short: "Rolling backup/restore sidecar for a network database",
		Long: `backupd exports the target database on a schedule, keeps exactly one
nightly and one weekly artifact under rolling retention, serves /health,
and restores the database from either slot on demand.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() {
	log, err := logger.Init()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		log.Error("command failed", "error", err.Error())
		logger.Cleanup()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "./configs/config.yaml", "path to YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
