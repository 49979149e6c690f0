package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/casesynth/cmd/cli/commands"
	"github.com/inferloop/casesynth/cmd/cli/config"
	"github.com/inferloop/casesynth/pkg/constants"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: constants.AppDescription,
		Long: `casesynth builds privacy-preserving surrogate datasets from preprocessed
disease-surveillance case reports: a synthetic daily case-count series plus
pseudoperson records whose attributes follow the source distributions and
rank correlations without reproducing real cases.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.casesynth.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewGenerateCmd())
	rootCmd.AddCommand(commands.NewInspectCmd())
	rootCmd.AddCommand(commands.NewValidateCmd())
	rootCmd.AddCommand(commands.NewBatchCmd())

	return rootCmd
}

func initConfig() error {
	if err := config.ConfigureViper(viper.GetViper(), cfgFile); err != nil {
		return err
	}
	if verbose {
		if cfgFile != "" {
			fmt.Fprintln(os.Stderr, "Using config file:", cfgFile)
		} else {
			fmt.Fprintln(os.Stderr, "Searching for config in $HOME")
		}
	}
	return nil
}
