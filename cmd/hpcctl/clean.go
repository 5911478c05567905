package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Stop every deployed runtime and remove its queues",
	Long:  "hpcctl clean --config <path>",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, closeCtl, err := newController(cmd)
		if err != nil {
			return err
		}
		defer closeCtl()

		if err := ctl.Clean(context.Background()); err != nil {
			return fmt.Errorf("clean: %w", err)
		}

		fmt.Println("✓ All runtimes stopped and cleaned")
		return nil
	},
}
