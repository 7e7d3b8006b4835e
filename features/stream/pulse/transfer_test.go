package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "cabline.dev/agent/clients/pulse"
)

func TestTransferPublishesNotice(t *testing.T) {
	var gotStream string
	str := &fakeStream{
		addFn: func(ctx context.Context, event string, payload []byte) (string, error) {
			require.Equal(t, "transfer_requested", event)
			var notice TransferNotice
			require.NoError(t, json.Unmarshal(payload, &notice))
			require.Equal(t, "call-77", notice.CallID)
			require.Equal(t, "Dispatch failed.", notice.Reason)
			require.Equal(t, "call/call-77", notice.CallStream)
			require.False(t, notice.At.IsZero())
			return "1-0", nil
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
			gotStream = name
			return str, nil
		},
	}

	tr, err := NewTransferor(TransferorOptions{Client: cli})
	require.NoError(t, err)
	require.NoError(t, tr.Transfer(context.Background(), "call-77", "Dispatch failed."))
	require.Equal(t, TransferStream, gotStream)
}

func TestTransferCustomStream(t *testing.T) {
	var gotStream string
	str := &fakeStream{
		addFn: func(ctx context.Context, event string, payload []byte) (string, error) {
			return "1-0", nil
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
			gotStream = name
			return str, nil
		},
	}

	tr, err := NewTransferor(TransferorOptions{Client: cli, Stream: "desk/escalations"})
	require.NoError(t, err)
	require.NoError(t, tr.Transfer(context.Background(), "call-1", "weird"))
	require.Equal(t, "desk/escalations", gotStream)
}

func TestTransferRequiresCallID(t *testing.T) {
	tr, err := NewTransferor(TransferorOptions{Client: &fakeClient{}})
	require.NoError(t, err)
	require.EqualError(t, tr.Transfer(context.Background(), "", "reason"), "call id is required")
}

func TestTransferAddError(t *testing.T) {
	str := &fakeStream{
		addFn: func(ctx context.Context, event string, payload []byte) (string, error) {
			return "", errors.New("add-failed")
		},
	}
	cli := &fakeClient{
		streamFn: func(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) { return str, nil },
	}
	tr, err := NewTransferor(TransferorOptions{Client: cli})
	require.NoError(t, err)
	require.EqualError(t, tr.Transfer(context.Background(), "call-1", "reason"), "add-failed")
}

func TestNewTransferorRequiresClient(t *testing.T) {
	_, err := NewTransferor(TransferorOptions{})
	require.EqualError(t, err, "pulse client is required")
}
