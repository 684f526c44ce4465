// Package cmd assembles the aquaguard command tree.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquaguard/aquaguard-go/cmd/realtime"
	"github.com/aquaguard/aquaguard-go/cmd/simulate"
	"github.com/aquaguard/aquaguard-go/internal/conf"
)

// RootCommand creates the root command with all subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aquaguard",
		Short: "AquaGuard water distribution leak detection service",
		Long: `AquaGuard ingests water-network telemetry, runs it through trained
leak-detection models and manages the model training lifecycle.`,
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		simulate.Command(settings),
	)

	setupFlags(rootCmd, settings)
	return rootCmd
}

// setupFlags defines persistent flags shared by all subcommands and binds
// them into viper so they override the config file.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	flags := rootCmd.PersistentFlags()

	flags.BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	flags.IntVarP(&settings.Web.Port, "port", "p", settings.Web.Port, "Port for the HTTP API server")
	flags.StringVar(&settings.ML.StorageDir, "storage-dir", settings.ML.StorageDir, "Directory for model artifacts and corpora")

	if err := viper.BindPFlags(flags); err != nil {
		cobra.CheckErr(err)
	}
}
