// Package audit records a deploy/stop lifecycle transition log for each
// runtime, the same shape the teacher repo keeps for its own jobs
// (internal/database.JobStateTransition), repurposed here from per-job to
// per-runtime-deploy transitions.
//
// It is optional: a nil *Client disables the trail entirely, so a
// deployment without a Spanner instance configured still works — none of
// the core invariants in spec.md §8 depend on it.
package audit

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// Transition is one recorded state change in a runtime's deploy/stop
// lifecycle.
type Transition struct {
	Runtime        string    `spanner:"Runtime"`
	TransitionId   string    `spanner:"TransitionId"`
	FromState      *string   `spanner:"FromState"`
	ToState        string    `spanner:"ToState"`
	TransitionedAt time.Time `spanner:"TransitionedAt"`
	Note           *string   `spanner:"Note"`
}

// Client records and reads runtime lifecycle transitions against a Spanner
// database. Construct with New; the zero value is not usable.
type Client struct {
	db *spanner.Client
}

// New opens a Spanner client against the given project/instance/database
// triple, mirroring the teacher's database.NewClient constructor shape.
func New(ctx context.Context, projectID, instance, database string) (*Client, error) {
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", projectID, instance, database)
	db, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: new spanner client: %w", err)
	}
	return &Client{db: db}, nil
}

// Close releases the underlying Spanner client.
func (c *Client) Close() { c.db.Close() }

// RecordTransition appends one row to the RuntimeTransitions table. fromState
// is nil for a runtime's very first recorded transition.
func (c *Client) RecordTransition(ctx context.Context, runtime string, fromState *string, toState, note string) error {
	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	_, err := c.db.Apply(ctx, []*spanner.Mutation{
		spanner.Insert("RuntimeTransitions",
			[]string{"Runtime", "TransitionId", "FromState", "ToState", "TransitionedAt", "Note"},
			[]interface{}{runtime, uuid.NewString(), fromState, toState, spanner.CommitTimestamp, notePtr},
		),
	})
	if err != nil {
		return fmt.Errorf("audit: record transition for %s: %w", runtime, err)
	}
	return nil
}

// ListTransitions returns every recorded transition for runtime, oldest
// first.
func (c *Client) ListTransitions(ctx context.Context, runtime string) ([]Transition, error) {
	stmt := spanner.Statement{
		SQL: `SELECT Runtime, TransitionId, FromState, ToState, TransitionedAt, Note
		      FROM RuntimeTransitions
		      WHERE Runtime = @runtime
		      ORDER BY TransitionedAt ASC`,
		Params: map[string]interface{}{"runtime": runtime},
	}
	iter := c.db.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []Transition
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("audit: list transitions for %s: %w", runtime, err)
		}
		var t Transition
		if err := row.ToStruct(&t); err != nil {
			return nil, fmt.Errorf("audit: parse transition row: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
