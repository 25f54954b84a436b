package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidOperation = errors.New("invalid operation")

// Operation is a mutation destined for the server. ID is stable across
// delivery attempts so the server can drop replays.
type Operation struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewOperation marshals payload to JSON. A nil payload is allowed.
func NewOperation(name string, payload any) (Operation, error) {
	op := Operation{Name: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Operation{}, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
		}
		op.Payload = raw
	}
	return op, op.Validate()
}

func (o Operation) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidOperation)
	}
	if len(o.Payload) > 0 && !json.Valid(o.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidOperation)
	}
	return nil
}

// QueuedOperation is an Operation waiting in the persisted queue.
// Sequence is assigned on enqueue and is unique within a user's queue.
type QueuedOperation struct {
	Operation `json:"operation"`

	Sequence   uint64    `json:"sequence"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
