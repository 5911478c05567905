package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <runtime>",
	Short: "Deploy a worker pool for a runtime",
	Long:  "hpcctl deploy <runtime> --config <path>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runtimeName := args[0]

		ctl, closeCtl, err := newController(cmd)
		if err != nil {
			return err
		}
		defer closeCtl()

		meta, err := ctl.Deploy(context.Background(), runtimeName)
		if err != nil {
			return fmt.Errorf("deploy %s: %w", runtimeName, err)
		}

		fmt.Printf("✓ Runtime %s deployed\n", runtimeName)
		fmt.Printf("  Go version:  %s\n", meta.GoVersion)
		if len(meta.Preinstalls) > 0 {
			fmt.Printf("  Preinstalls: %s\n", strings.Join(meta.Preinstalls, ", "))
		}
		return nil
	},
}
