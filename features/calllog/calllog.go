// Package calllog provides a durable, append-only event log for booking
// calls.
//
// The call log is the canonical record of what happened on a call: when it
// started, every processed turn, backend requests and results, booking
// creation and the final outcome. Stores append entries as calls run and
// callers list them with opaque cursors; the post-call summarizer reads the
// log back to build its transcript.
package calllog

import (
	"context"
	"encoding/json"
	"time"

	"cabline.dev/agent/booking/hooks"
)

type (
	// Entry is a single immutable call event appended to the log.
	//
	// Store implementations assign the ID when persisting the entry. IDs are
	// opaque, monotonically ordered within a call, and suitable for
	// cursor-based pagination.
	Entry struct {
		// ID is the store-assigned opaque identifier for this entry.
		ID string
		// CallID is the identifier of the call this entry belongs to.
		CallID string
		// TurnID identifies the speech model turn for turn entries, empty
		// otherwise.
		TurnID string
		// Type is the hook event type.
		Type hooks.EventType
		// Payload is the canonical JSON-encoded payload for the entry.
		Payload json.RawMessage
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of call entries.
	Page struct {
		// Entries are ordered oldest-first.
		Entries []*Entry
		// NextCursor is the cursor to use to fetch the next page. It is
		// empty when there are no further entries.
		NextCursor string
	}

	// Store is an append-only entry store.
	//
	// Implementations must provide stable ordering within a call. Cursor
	// values are store-owned and opaque to callers.
	Store interface {
		// Append stores the entry in the call log. Implementations assign
		// the entry ID and persist the payload verbatim.
		Append(ctx context.Context, e *Entry) error

		// List returns the next forward page of entries for the given call
		// ID. Cursor is an opaque value returned by a previous List (or
		// empty to start from the beginning). Limit must be greater than
		// zero.
		List(ctx context.Context, callID string, cursor string, limit int) (Page, error)
	}
)
