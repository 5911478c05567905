// Command hpcctl is the operator-facing CLI for the HPC serverless backend:
// deploy, invoke, stop, clean, and list worker pools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hpcctl",
	Short: "hpcctl CLI",
	Long: "-------------------------------------------------------------------\n" +
		"                       HPC Backend Control CLI\n" +
		"-------------------------------------------------------------------",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	cobra.EnableCommandSorting = false

	rootCmd.PersistentFlags().String("config", os.Getenv("HPC_CONFIG"), "path to the backend config YAML (or HPC_CONFIG env var)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
