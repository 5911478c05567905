package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [runtime]",
	Short: "List deployed runtimes",
	Long:  "hpcctl list [runtime|all] --config <path>",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runtimeName := "all"
		if len(args) == 1 {
			runtimeName = args[0]
		}

		ctl, closeCtl, err := newController(cmd)
		if err != nil {
			return err
		}
		defer closeCtl()

		infos, err := ctl.List(context.Background(), runtimeName)
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		if len(infos) == 0 {
			fmt.Println("No runtimes deployed.")
			return nil
		}

		fmt.Printf("%-24s  %-10s  %s\n", "RUNTIME", "MEMORY", "VERSION")
		fmt.Println(strings.Repeat("─", 56))
		for _, info := range infos {
			fmt.Printf("%-24s  %-10d  %s\n", info.Name, info.Memory, info.Version)
		}
		return nil
	},
}
