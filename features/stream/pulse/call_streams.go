package pulse

import (
	"context"
	"errors"

	clientspulse "cabline.dev/agent/clients/pulse"
)

// CallStreams wires a caller-provided Pulse client into the call fan-out. It
// owns the publishing sink (registered on the hook bus) and can spawn
// subscribers that reuse the same client so services do not need to manage
// multiple Pulse connections.
type CallStreams struct {
	sink   *Sink
	client clientspulse.Client
}

// CallStreamsOptions configures the helper returned by NewCallStreams.
type CallStreamsOptions struct {
	// Client is the Pulse client used for both publishing and subscribing. It
	// is required and typically built via clients/pulse.
	Client clientspulse.Client
	// Sink holds optional overrides for the publishing sink (stream ID
	// derivation, publish callback). Leave zero-valued for defaults.
	Sink Options
}

// NewCallStreams constructs helpers for publishing call events to Pulse and
// subscribing to the resulting streams. Callers register the returned sink on
// the hook bus and keep the helper around to create subscribers (dashboard or
// transfer desk fan-out) later on.
func NewCallStreams(opts CallStreamsOptions) (*CallStreams, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	sinkOpts := opts.Sink
	sinkOpts.Client = opts.Client
	sink, err := NewSink(sinkOpts)
	if err != nil {
		return nil, err
	}
	return &CallStreams{sink: sink, client: opts.Client}, nil
}

// Sink exposes the publishing sink so callers can register it on the hook bus.
func (c *CallStreams) Sink() *Sink {
	return c.sink
}

// NewSubscriber constructs a Pulse-backed subscriber that reuses the helper's
// client. This keeps stream publishing and consumption on the same Redis
// connection pool.
func (c *CallStreams) NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	opts.Client = c.client
	return NewSubscriber(opts)
}

// Close shuts down the publishing sink (and therefore the underlying Pulse
// client). Call this during service shutdown after all subscribers have been
// canceled.
func (c *CallStreams) Close(ctx context.Context) error {
	return c.sink.Close(ctx)
}
