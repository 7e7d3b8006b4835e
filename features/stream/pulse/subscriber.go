package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "cabline.dev/agent/clients/pulse"
)

type (
	// Envelope is one decoded frame from a call stream. Payload keeps the
	// event-specific body raw so consumers can decode only the types they
	// care about.
	Envelope struct {
		Type      string          `json:"type"`
		CallID    string          `json:"call_id"`
		Timestamp time.Time       `json:"ts"`
		Payload   json.RawMessage `json:"payload,omitempty"`
	}

	// EnvelopeDecoder converts raw payloads read from Pulse into envelopes.
	// Custom decoders can be provided to handle non-standard formats.
	EnvelopeDecoder func([]byte) (Envelope, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume events. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to "cabline_live".
		SinkName string
		// Buffer specifies the envelope channel capacity. Defaults to 64.
		Buffer int
		// Decoder deserializes stream payloads. Defaults to the built-in JSON decoder.
		Decoder EnvelopeDecoder
	}

	// Subscriber consumes call streams and emits decoded envelopes. It wraps a
	// Pulse sink (consumer group); dashboards and the transfer desk use it to
	// follow a call live.
	Subscriber struct {
		client clientspulse.Client
		buffer int
		name   string
		decode EnvelopeDecoder
	}
)

// NewSubscriber constructs a Pulse-backed subscriber. The Client field in opts
// is required; SinkName, Buffer, and Decoder default to sensible values if not
// provided (see SubscriberOptions field documentation).
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	name := opts.SinkName
	if name == "" {
		name = "cabline_live"
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	decoder := opts.Decoder
	if decoder == nil {
		decoder = decodeEnvelope
	}
	return &Subscriber{
		client: opts.Client,
		buffer: buffer,
		name:   name,
		decode: decoder,
	}, nil
}

// Subscribe opens a Pulse sink on the given stream ID and returns channels for
// envelopes and errors. It spawns a goroutine that consumes from the sink,
// decodes payloads, and emits envelopes. The returned cancel function stops
// consumption, closes the sink, and closes both channels.
//
// Usage:
//
//	envs, errs, cancel, err := sub.Subscribe(ctx, "call/abc123")
//	defer cancel()
//	for env := range envs {
//	    // render env
//	}
func (s *Subscriber) Subscribe(
	ctx context.Context,
	streamID string,
	opts ...streamopts.Sink,
) (<-chan Envelope, <-chan error, context.CancelFunc, error) {
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	envs := make(chan Envelope, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go s.consume(runCtx, sink, envs, errs)
	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return envs, errs, cancelFunc, nil
}

// consume reads events from the Pulse sink channel, decodes them, and emits
// them on the out channel. It acks each event after successful emission.
// Closes both channels when ctx is canceled or when the sink channel closes.
// Sends errors on the errs channel if decoding or acking fails, then returns.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- Envelope, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			decoded, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}
			if ackErr := sink.Ack(ctx, evt); ackErr != nil {
				errs <- fmt.Errorf("pulse ack: %w", ackErr)
				return
			}
		}
	}
}

// decodeEnvelope deserializes the default JSON envelope format. Returns an
// error if the payload is malformed.
func decodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
