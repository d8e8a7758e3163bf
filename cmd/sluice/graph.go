package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [definition]",
	Short: "Export the graph visualization",
	Long: `Outputs a Mermaid diagram (graph LR) of the nodes and links, with execution
contexts drawn as subgraphs. --report prints a markdown report instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := cli.GraphOptions{RunOptions: runOptions(cmd, args)}
		opts.Report, _ = cmd.Flags().GetBool("report")
		opts.Run, _ = cmd.Flags().GetBool("run")
		return cli.Graph(opts, cfg)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().String("snapshot", "", "Draw the named snapshot instead of a definition")
	graphCmd.Flags().Bool("report", false, "Print a markdown report with node and context tables")
	graphCmd.Flags().Bool("run", false, "Run the graph first and show the final node states")
	graphCmd.Flags().Duration("timeout", 0, "Stop waiting for the graph to settle after this long")
}
