package main

import (
	"github.com/aretw0/sluice/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [definition]",
	Short: "Run a graph behind the HTTP monitor",
	Long: `Runs the graph and exposes its nodes, links, contexts, metrics and a live
event stream over HTTP until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := cli.ServeOptions{RunOptions: runOptions(cmd, args), Addr: cfg.Monitor.Addr}
		if cmd.Flags().Changed("addr") {
			opts.Addr, _ = cmd.Flags().GetString("addr")
		}
		return cli.Serve(opts, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("snapshot", "", "Restore the named snapshot instead of reading a definition")
	serveCmd.Flags().String("addr", "", "Listen address (default from the monitor config)")
}
