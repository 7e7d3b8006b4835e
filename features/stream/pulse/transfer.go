package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cabline.dev/agent/booking/backends"
	clientspulse "cabline.dev/agent/clients/pulse"
)

// TransferStream is the Pulse stream the operator desk consumes for
// escalations. Unlike the per-call streams, every escalated call lands on
// this one shared stream.
const TransferStream = "transfers"

// transferEvent names entries on the transfer stream.
const transferEvent = "transfer_requested"

type (
	// TransferorOptions configures a Transferor.
	TransferorOptions struct {
		// Client is the Pulse client used to publish notices. Required.
		Client clientspulse.Client
		// Stream overrides the transfer stream name. Defaults to
		// TransferStream.
		Stream string
	}

	// Transferor notifies the operator desk of escalated calls by appending
	// a notice to the shared transfer stream. It implements
	// backends.Transferor; the call shell invokes it once per escalation.
	Transferor struct {
		client clientspulse.Client
		stream string
	}

	// TransferNotice is the JSON payload of one escalation notice.
	// CallStream names the call's own event stream so the desk can attach
	// to it for live context.
	TransferNotice struct {
		CallID     string    `json:"call_id"`
		Reason     string    `json:"reason"`
		CallStream string    `json:"call_stream"`
		At         time.Time `json:"at"`
	}
)

// NewTransferor constructs a Transferor. The Client field in opts is
// required.
func NewTransferor(opts TransferorOptions) (*Transferor, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	stream := opts.Stream
	if stream == "" {
		stream = TransferStream
	}
	return &Transferor{client: opts.Client, stream: stream}, nil
}

var _ backends.Transferor = (*Transferor)(nil)

// Transfer implements backends.Transferor.
func (t *Transferor) Transfer(ctx context.Context, callID, reason string) error {
	if callID == "" {
		return errors.New("call id is required")
	}
	str, err := t.client.Stream(t.stream)
	if err != nil {
		return err
	}
	notice := TransferNotice{
		CallID:     callID,
		Reason:     reason,
		CallStream: fmt.Sprintf("call/%s", callID),
		At:         time.Now().UTC(),
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal transfer notice: %w", err)
	}
	if _, err := str.Add(ctx, transferEvent, data); err != nil {
		return err
	}
	return nil
}
