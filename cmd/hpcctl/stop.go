package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:     "stop <runtime>",
	Aliases: []string{"delete"},
	Short:   "Stop a deployed worker pool",
	Long:    "hpcctl stop <runtime> --config <path>",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runtimeName := args[0]

		ctl, closeCtl, err := newController(cmd)
		if err != nil {
			return err
		}
		defer closeCtl()

		if err := ctl.Delete(context.Background(), runtimeName); err != nil {
			return fmt.Errorf("stop %s: %w", runtimeName, err)
		}

		fmt.Printf("✓ Runtime %s stopped\n", runtimeName)
		return nil
	},
}
