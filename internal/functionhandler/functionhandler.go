// Package functionhandler names the boundary contract between the worker
// entry point and the user function execution environment. Actually running
// a function invocation (sandboxing, serialization of results, storage of
// return values) is out of scope for this backend; this package only fixes
// the shape the worker entry point calls into.
package functionhandler

import (
	"context"

	"github.com/neardata-eu/lithops-hpc/internal/envelope"
)

// Handler executes one batch of calls described by payload. Implementations
// are expected to run each call id in payload.CallIDs and persist its
// result through whatever mechanism the surrounding function-handler
// contract defines (object storage, a results queue, etc.) — none of which
// this backend interprets.
type Handler interface {
	Handle(ctx context.Context, payload envelope.JobPayload) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, payload envelope.JobPayload) error

func (f HandlerFunc) Handle(ctx context.Context, payload envelope.JobPayload) error {
	return f(ctx, payload)
}
