package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"
)

// redisPinger adapts the Redis client to the health checker.
type redisPinger struct {
	rdb *redis.Client
}

// Name implements health.Pinger.
func (p redisPinger) Name() string { return "redis" }

// Ping implements health.Pinger.
func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

// handleHTTPServer mounts the speech gateway and the health and debug
// endpoints, then runs the HTTP server until ctx is canceled.
func handleHTTPServer(ctx context.Context, addr string, gateway http.Handler, checker health.Checker, wg *sync.WaitGroup, errc chan error, dbg bool) {
	// Build the request multiplexer and mount debug and profiler endpoints
	// in debug mode.
	mux := http.NewServeMux()
	if dbg {
		// Mount pprof handlers for memory profiling under /debug/pprof.
		debug.MountPprofHandlers(mux)
		// Mount /debug endpoint to enable or disable debug logs at runtime.
		debug.MountDebugLogEnabler(mux)
	}

	// The gateway upgrades each connection to WebSocket and runs the call
	// session in the request handler, so the request context spans the call.
	mux.Handle("/calls", gateway)
	// /healthz reports dependency health; /livez only process liveness.
	mux.Handle("/healthz", health.Handler(checker))
	mux.Handle("/livez", health.Handler(health.NewChecker()))

	var handler http.Handler = mux
	if dbg {
		// Log query and response bodies if debug logs are enabled.
		handler = debug.HTTP()(handler)
	}
	handler = log.HTTP(ctx)(handler)

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: time.Second * 60}
	for _, pattern := range []string{"/calls", "/healthz", "/livez"} {
		log.Printf(ctx, "HTTP %q mounted", pattern)
	}

	(*wg).Add(1)
	go func() {
		defer (*wg).Done()

		// Start HTTP server in a separate goroutine.
		go func() {
			log.Printf(ctx, "HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", addr)

		// Shutdown gracefully with a 30s timeout. Live calls run inside
		// request handlers; canceling ctx has already told them to wind up.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()
}
