package main

import (
	"fmt"
	"os"

	"github.com/aretw0/sluice/internal/cli"
	"github.com/aretw0/sluice/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "Sluice runs dataflow graphs",
	Long: `Sluice executes graphs of processing nodes joined by typed ports.
Nodes fire when their inputs are ready and are scheduled on shared or
private execution contexts.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default "+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
}

// loadConfig reads the configuration file and applies the flags over it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if cmd.Flags().Lookup("timeout") != nil && cmd.Flags().Changed("timeout") {
		cfg.Engine.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	return cfg, cfg.Validate()
}

// runOptions reads the flags shared by run, graph and serve.
func runOptions(cmd *cobra.Command, args []string) cli.RunOptions {
	opts := cli.RunOptions{}
	if len(args) > 0 {
		opts.DefinitionPath = args[0]
	}
	opts.Snapshot, _ = cmd.Flags().GetString("snapshot")
	return opts
}
