package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [definition]",
	Short: "Run a graph until it settles",
	Long: `Loads a YAML or HCL graph definition (or a stored snapshot with --snapshot),
runs it until no node can fire and prints a summary of every node.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := runOptions(cmd, args)
		opts.Save, _ = cmd.Flags().GetBool("save")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		return cli.Execute(opts, cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("snapshot", "", "Restore the named snapshot instead of reading a definition")
	runCmd.Flags().Bool("save", false, "Save a snapshot of the graph after the run")
	runCmd.Flags().Bool("headless", false, "Print only the summary, no banner or messages")
	runCmd.Flags().Duration("timeout", 0, "Stop waiting for the graph to settle after this long")
}
