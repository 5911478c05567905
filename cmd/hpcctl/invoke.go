package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neardata-eu/lithops-hpc/internal/envelope"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <runtime>",
	Short: "Invoke a function over a range of calls",
	Long:  "hpcctl invoke <runtime> --config <path> --job-key <key> --total-calls <n>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runtimeName := args[0]
		jobKey, _ := cmd.Flags().GetString("job-key")
		totalCalls, _ := cmd.Flags().GetInt("total-calls")

		if jobKey == "" {
			return fmt.Errorf("--job-key flag is required")
		}
		if totalCalls <= 0 {
			return fmt.Errorf("--total-calls must be positive")
		}

		callIDs := make([]string, totalCalls)
		ranges := make([]envelope.ByteRange, totalCalls)
		for i := 0; i < totalCalls; i++ {
			callIDs[i] = fmt.Sprintf("%s-%d", jobKey, i)
			ranges[i] = envelope.ByteRange{int64(i), int64(i + 1)}
		}

		ctl, closeCtl, err := newController(cmd)
		if err != nil {
			return err
		}
		defer closeCtl()

		activationID, err := ctl.Invoke(context.Background(), runtimeName, envelope.JobPayload{
			JobKey:         jobKey,
			TotalCalls:     totalCalls,
			CallIDs:        callIDs,
			DataByteRanges: ranges,
		})
		if err != nil {
			return fmt.Errorf("invoke %s: %w", runtimeName, err)
		}

		fmt.Printf("✓ Invocation dispatched\n")
		fmt.Printf("  Activation ID: %s\n", activationID)
		fmt.Printf("  Total calls:   %d\n", totalCalls)
		return nil
	},
}

func init() {
	invokeCmd.Flags().String("job-key", "", "unique key identifying this invocation")
	invokeCmd.Flags().Int("total-calls", 0, "number of calls to dispatch")
}
