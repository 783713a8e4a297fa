// Package cmd wires the phyloflow command tree.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phyloflow/phyloflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "phyloflow",
	Short: "Phylogenetic tree construction pipeline",
	Long: `Phyloflow sequences the standard phylogenomic toolchain - BUSCO,
MAFFT, trimAl and IQ-TREE - from per-species assemblies to a partitioned,
bootstrapped species tree. Stages communicate through a fixed output
directory layout, so any part of the pipeline can be rerun against a
partially completed run.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.config/phyloflow/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/phyloflow")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PHYLOFLOW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PHYLOFLOW_EXECUTION_PARALLEL for execution.parallel
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
