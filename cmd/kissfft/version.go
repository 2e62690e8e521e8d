package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/kissfft/guest"
	"github.com/wippyai/kissfft/probe"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and host capability information",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "kissfft %s\n", version)
		fmt.Fprintf(w, "  commit: %s\n", commit)
		fmt.Fprintf(w, "  built: %s\n", date)

		fmt.Fprintf(w, "  host vector extensions: %v\n", probe.Host())
		simd := probe.Supported(cmd.Context())
		best := guest.Baseline
		if simd {
			best = guest.SIMD
		}
		fmt.Fprintf(w, "  runtime SIMD: %v (engine: %s)\n", simd, best)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
