package call

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/codes"

	"cabline.dev/agent/booking/events"
	"cabline.dev/agent/booking/hooks"
)

// launchBackend runs one backend operation on a worker goroutine. The worker
// is bounded by the configured per-request timeout; timeouts and transport
// errors come back as OK=false results so the engine's retry-then-escalate
// path handles them like any vendor rejection. A result superseded by a newer
// request of the same kind is dropped before it reaches the engine.
func (c *Call) launchBackend(kind events.BackendKind, fn func(context.Context) events.BackendResult) {
	seq := c.nextSeq(kind)
	c.publish(c.ctx, hooks.NewBackendRequestedEvent(c.id, kind, seq))
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		wctx, cancel := context.WithTimeout(c.ctx, c.opts.BackendTimeout)
		defer cancel()
		wctx, span := c.opts.Tracer.Start(wctx, "backend."+string(kind))
		started := time.Now()
		res := fn(wctx)
		if res.OK {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, res.Err)
		}
		span.End()
		elapsed := time.Since(started)

		stale := c.isStale(kind, seq)
		c.opts.Metrics.RecordTimer("call.backend.duration", elapsed,
			"backend", string(kind), "ok", strconv.FormatBool(res.OK))
		c.publish(context.WithoutCancel(c.ctx), hooks.NewBackendResolvedEvent(c.id, kind, seq, res.OK, stale, elapsed))
		if stale {
			c.opts.Logger.Debug(c.ctx, "dropping superseded backend result",
				"call_id", c.id, "backend", string(kind), "seq", seq)
			return
		}
		select {
		case c.mailbox <- res:
		case <-c.ctx.Done():
		}
	}()
}

// geocode resolves one raw address through the geocoder.
func (c *Call) geocode(ctx context.Context, kind events.BackendKind, raw string) events.BackendResult {
	out := events.BackendResult{Backend: kind}
	res, err := c.opts.Geocoder.Geocode(ctx, raw)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.OK = res.OK
	out.NormalizedAddress = res.NormalizedAddress
	out.Err = res.Err
	return out
}

// dispatch creates the booking with the fleet.
func (c *Call) dispatch(ctx context.Context, details events.BookingDetails) events.BackendResult {
	out := events.BackendResult{Backend: events.BackendDispatch}
	res, err := c.opts.Dispatcher.Dispatch(ctx, details)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.OK = res.OK
	out.BookingID = res.BookingID
	out.Err = res.Err
	return out
}

// amend updates an existing fleet booking.
func (c *Call) amend(ctx context.Context, bookingID string, details events.BookingDetails) events.BackendResult {
	out := events.BackendResult{Backend: events.BackendAmend}
	res, err := c.opts.Amender.Amend(ctx, bookingID, details)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.OK = res.OK
	out.Err = res.Err
	return out
}

// transfer notifies the operator desk that the call was escalated. The call
// ends regardless of the outcome, so failures are logged and not retried.
// Cancellation is stripped because the loop tears down right after.
func (c *Call) transfer(reason string) {
	if c.opts.Transferor == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.opts.BackendTimeout)
		defer cancel()
		if err := c.opts.Transferor.Transfer(ctx, c.id, reason); err != nil {
			c.opts.Logger.Error(ctx, "transfer notification failed", "call_id", c.id, "err", err)
		}
	}()
}

// nextSeq issues the next sequence number for the kind, invalidating any
// outstanding request of the same kind.
func (c *Call) nextSeq(kind events.BackendKind) uint64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seq[kind]++
	return c.seq[kind]
}

// isStale reports whether a newer request of the same kind was issued after
// seq.
func (c *Call) isStale(kind events.BackendKind, seq uint64) bool {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	return c.seq[kind] != seq
}
