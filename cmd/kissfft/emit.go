package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/kissfft/guest"
	"github.com/wippyai/kissfft/loader"
)

func init() {
	rootCmd.AddCommand(newEmitCmd())
	rootCmd.AddCommand(newInspectCmd())
}

func newEmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emit <dir>",
		Short: "Write the engine binaries into a directory",
		Long: `The emit command writes every engine variant into dir. Point
KISSFFT_ASSET_DIR at the directory, or serve it over HTTP and set
KISSFFT_ASSET_URL, to load the engine from there instead of the
embedded copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := loader.Emit(args[0])
			if err != nil {
				return err
			}
			for _, p := range written {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <variant>",
		Short: "List the imports, exports and memory of an engine binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := guest.ParseVariant(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bin, err := cfg.Resolver().Resolve(cmd.Context(), v)
			if err != nil {
				return err
			}
			m, err := guest.Verify(bin)
			if m == nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d bytes\n", v.Filename(), len(bin))
			fmt.Fprintf(w, "memory: %d pages minimum\n", m.MinPages)
			fmt.Fprintf(w, "imports: %v\n", m.Imports)
			fmt.Fprintln(w, "exports:")
			for _, name := range m.ExportNames() {
				fmt.Fprintf(w, "  %s\n", name)
			}
			return err
		},
	}
}
