package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	sub := SubscriberFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	})
	_, err := bus.Register(sub)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, NewCallStartedEvent("call1", "+447700900123", "")))
	require.NoError(t, bus.Publish(ctx, NewCallEndedEvent("call1", OutcomeCompleted, "end", "BK1")))
	require.Equal(t, 2, count)
}

func TestBusRegisterNil(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestBusStopsAtFirstError(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := bus.Register(SubscriberFunc(func(ctx context.Context, event Event) error {
		return boom
	}))
	require.NoError(t, err)
	require.ErrorIs(t, bus.Publish(ctx, NewCallStartedEvent("call1", "", "")), boom)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()
	count := 0
	sub := SubscriberFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	})
	subscription, err := bus.Register(sub)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, NewCallStartedEvent("call1", "", "")))
	require.NoError(t, subscription.Close())
	require.NoError(t, subscription.Close()) // idempotent
	require.NoError(t, bus.Publish(ctx, NewCallEndedEvent("call1", OutcomeAbandoned, "collect_pickup", "")))
	require.Equal(t, 1, count)
}

func TestEventAccessors(t *testing.T) {
	evt := NewCallStartedEvent("call-42", "+447700900123", "Ada")
	require.Equal(t, CallStarted, evt.Type())
	require.Equal(t, "call-42", evt.CallID())
	require.NotZero(t, evt.Timestamp())
	require.Equal(t, "Ada", evt.CallerName)
}
