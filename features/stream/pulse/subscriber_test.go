package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "cabline.dev/agent/clients/pulse"
)

func TestSubscribeEmitsEnvelopes(t *testing.T) {
	ctx := context.Background()
	eventCh := make(chan *streaming.Event, 1)
	var acked []string
	streamSink := &fakeStreamSink{
		ch: eventCh,
		ackFn: func(ctx context.Context, evt *streaming.Event) error {
			acked = append(acked, evt.ID)
			return nil
		},
	}
	str := &fakeStream{
		newSinkFn: func(ctx context.Context, name string, opts ...streamopts.Sink) (clientspulse.Sink, error) {
			require.Equal(t, "cabline_live", name)
			return streamSink, nil
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
			require.Equal(t, "call/call-123", name)
			return str, nil
		},
	}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli, Buffer: 2})
	require.NoError(t, err)

	envs, errs, cancel, err := sub.Subscribe(ctx, "call/call-123")
	require.NoError(t, err)
	defer cancel()

	payload, _ := json.Marshal(map[string]any{
		"type":    "turn_processed",
		"call_id": "call-123",
		"ts":      time.Now().UTC(),
		"payload": map[string]string{"stage": "collect_dropoff", "say": "Where to?"},
	})
	eventCh <- &streaming.Event{ID: "1-0", Payload: payload}
	close(eventCh)

	env := <-envs
	require.Equal(t, "turn_processed", env.Type)
	require.Equal(t, "call-123", env.CallID)
	body := make(map[string]string)
	require.NoError(t, json.Unmarshal(env.Payload, &body))
	require.Equal(t, "collect_dropoff", body["stage"])
	require.Empty(t, errs)

	_, more := <-envs
	require.False(t, more)
	require.Equal(t, []string{"1-0"}, acked)
}

func TestSubscribeDecoderError(t *testing.T) {
	eventCh := make(chan *streaming.Event, 1)
	streamSink := &fakeStreamSink{ch: eventCh}
	str := &fakeStream{
		newSinkFn: func(ctx context.Context, name string, opts ...streamopts.Sink) (clientspulse.Sink, error) {
			return streamSink, nil
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) { return str, nil },
	}

	sub, err := NewSubscriber(SubscriberOptions{
		Client: cli,
		Decoder: func([]byte) (Envelope, error) {
			return Envelope{}, errors.New("decode error")
		},
	})
	require.NoError(t, err)

	envs, errs, cancel, err := sub.Subscribe(context.Background(), "call/call-1")
	require.NoError(t, err)
	defer cancel()
	eventCh <- &streaming.Event{Payload: []byte("{}")}
	close(eventCh)

	require.Empty(t, envs)
	require.EqualError(t, <-errs, "pulse decode payload: decode error")
}

func TestSubscribeAckError(t *testing.T) {
	eventCh := make(chan *streaming.Event, 1)
	streamSink := &fakeStreamSink{
		ch: eventCh,
		ackFn: func(ctx context.Context, evt *streaming.Event) error {
			return errors.New("ack failed")
		},
	}
	str := &fakeStream{
		newSinkFn: func(ctx context.Context, name string, opts ...streamopts.Sink) (clientspulse.Sink, error) {
			return streamSink, nil
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) { return str, nil },
	}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	envs, errs, cancel, err := sub.Subscribe(context.Background(), "call/call-1")
	require.NoError(t, err)
	defer cancel()

	payload, _ := json.Marshal(Envelope{Type: "call_started", CallID: "call-1"})
	eventCh <- &streaming.Event{ID: "1-0", Payload: payload}
	close(eventCh)

	<-envs
	require.EqualError(t, <-errs, "pulse ack: ack failed")
}

func TestSubscribeCancelClosesSink(t *testing.T) {
	eventCh := make(chan *streaming.Event)
	streamSink := &fakeStreamSink{ch: eventCh}
	str := &fakeStream{
		newSinkFn: func(ctx context.Context, name string, opts ...streamopts.Sink) (clientspulse.Sink, error) {
			return streamSink, nil
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) { return str, nil },
	}

	sub, err := NewSubscriber(SubscriberOptions{Client: cli})
	require.NoError(t, err)

	envs, errs, cancel, err := sub.Subscribe(context.Background(), "call/call-1")
	require.NoError(t, err)

	cancel()
	require.True(t, streamSink.closed)
	for range envs {
	}
	for range errs {
	}
}

func TestNewSubscriberRequiresClient(t *testing.T) {
	_, err := NewSubscriber(SubscriberOptions{})
	require.EqualError(t, err, "pulse client is required")
}
