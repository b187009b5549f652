package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hxlabs/vkc/internal/compiler"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "print the diagnostics record for a compile job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			res, err := compiler.Compile(cfg)
			if err != nil {
				return err
			}
			fmt.Print(res.Diag.String())
			return nil
		},
	}
	return cmd
}
