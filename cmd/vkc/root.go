// Command vkc is the VLIW kernel compiler's CLI entry point (SPEC_FULL.md
// section 6), built with github.com/spf13/cobra + github.com/spf13/pflag
// the way moby-moby's command tree wires its CLI surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hxlabs/vkc/internal/config"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vkc",
		Short: "vkc compiles a fixed gather-hash-branch kernel to a VLIW bundle stream",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (defaults built-in if omitted)")

	root.AddCommand(newCompileCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newStatsCmd())
	return root
}

// loadConfigOrDefault returns config.Default() when configPath is empty,
// otherwise loads and validates the TOML document at configPath.
func loadConfigOrDefault() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadTOML(configPath)
}
