package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/health"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	"cabline.dev/agent/booking/call"
	"cabline.dev/agent/booking/engine"
	"cabline.dev/agent/booking/hooks"
	"cabline.dev/agent/booking/telemetry"
	"cabline.dev/agent/clients/callerid"
	"cabline.dev/agent/clients/fleet"
	"cabline.dev/agent/clients/geocode"
	clientsmongo "cabline.dev/agent/clients/mongo"
	clientspulse "cabline.dev/agent/clients/pulse"
	"cabline.dev/agent/features/calllog"
	calllogmongo "cabline.dev/agent/features/calllog/mongo"
	"cabline.dev/agent/features/model"
	"cabline.dev/agent/features/model/anthropic"
	"cabline.dev/agent/features/model/middleware"
	"cabline.dev/agent/features/model/openai"
	streampulse "cabline.dev/agent/features/stream/pulse"
	"cabline.dev/agent/features/summary"
	"cabline.dev/agent/parse/address"
	"cabline.dev/agent/parse/uktime"
	"cabline.dev/agent/speech"
)

const (
	// connectTimeout bounds the initial Mongo and Redis dials.
	connectTimeout = 10 * time.Second

	// callerLookupTimeout bounds the caller ID lookup. The caller is on the
	// line waiting for the welcome prompt.
	callerLookupTimeout = 3 * time.Second

	// summaryTimeout bounds post-call summary generation.
	summaryTimeout = 30 * time.Second

	// modelLimitsMap is the replicated map coordinating the model rate
	// limit across replicas.
	modelLimitsMap = "model_limits"
)

func main() {
	// Define command line flags. Everything beyond these operational
	// switches lives in the YAML configuration file.
	var (
		configF = flag.String("config", "agentd.yaml", "Path to the YAML configuration file")
		listenF = flag.String("listen", "", "HTTP listen address (overrides the config file)")
		dbgF    = flag.Bool("debug", false, "Enable debug logs and request/response logging")
	)
	flag.Parse()

	// Setup logger: JSON in production, terminal format on a TTY.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := LoadConfig(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "load config %q", *configF)
	}
	if *listenF != "" {
		cfg.Listen = *listenF
	}
	log.Print(ctx, log.KV{K: "config", V: *configF}, log.KV{K: "listen", V: cfg.Listen})

	// Connect the stores. Mongo persists the call log; Redis backs the live
	// fan-out and the shared model rate limit.
	var (
		mongoClient *clientsmongo.Client
		rdb         *redis.Client
	)
	{
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		mongoClient, err = clientsmongo.Connect(cctx, clientsmongo.Options{URI: cfg.Mongo.URI})
		if err != nil {
			log.Fatalf(ctx, err, "connect mongo")
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()
			if err := mongoClient.Disconnect(dctx); err != nil {
				log.Errorf(ctx, err, "disconnect mongo")
			}
		}()
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(cctx).Err(); err != nil {
			log.Fatalf(ctx, err, "connect redis")
		}
		defer rdb.Close()
	}

	// Vendor clients shared by every call.
	var (
		geocoder *geocode.Client
		fleetAPI *fleet.Client
		callers  *callerid.Client
	)
	{
		var gopts []geocode.Option
		if cfg.Vendors.Geocode.APIKey != "" {
			gopts = append(gopts, geocode.WithAPIKey(cfg.Vendors.Geocode.APIKey))
		}
		if cfg.Vendors.Geocode.RateLimit > 0 {
			gopts = append(gopts, geocode.WithRateLimit(cfg.Vendors.Geocode.RateLimit, cfg.Vendors.Geocode.Burst))
		}
		geocoder, err = geocode.New(cfg.Vendors.Geocode.Endpoint, gopts...)
		if err != nil {
			log.Fatalf(ctx, err, "build geocode client")
		}
		var fopts []fleet.Option
		if cfg.Vendors.Fleet.APIKey != "" {
			fopts = append(fopts, fleet.WithAPIKey(cfg.Vendors.Fleet.APIKey))
		}
		fleetAPI, err = fleet.New(cfg.Vendors.Fleet.Endpoint, fopts...)
		if err != nil {
			log.Fatalf(ctx, err, "build fleet client")
		}
		if cfg.Vendors.CallerID.Endpoint != "" {
			var copts []callerid.Option
			if cfg.Vendors.CallerID.APIKey != "" {
				copts = append(copts, callerid.WithAPIKey(cfg.Vendors.CallerID.APIKey))
			}
			callers, err = callerid.New(cfg.Vendors.CallerID.Endpoint, copts...)
			if err != nil {
				log.Fatalf(ctx, err, "build caller id client")
			}
		}
	}

	// Call observability. The recorder persists the log, the Pulse sink
	// fans events out live, and the summarizer runs once a call ends.
	var (
		bus        hooks.Bus
		streams    *streampulse.CallStreams
		transferor *streampulse.Transferor
	)
	{
		store, err := calllogmongo.New(calllogmongo.Options{Client: mongoClient, Database: cfg.Mongo.Database})
		if err != nil {
			log.Fatalf(ctx, err, "build call log store")
		}
		recorder, err := calllog.NewRecorder(store)
		if err != nil {
			log.Fatalf(ctx, err, "build call log recorder")
		}
		pulseClient, err := clientspulse.New(clientspulse.Options{Redis: rdb, StreamMaxLen: cfg.Redis.StreamMaxLen})
		if err != nil {
			log.Fatalf(ctx, err, "build pulse client")
		}
		streams, err = streampulse.NewCallStreams(streampulse.CallStreamsOptions{Client: pulseClient})
		if err != nil {
			log.Fatalf(ctx, err, "build call streams")
		}
		transferor, err = streampulse.NewTransferor(streampulse.TransferorOptions{Client: pulseClient})
		if err != nil {
			log.Fatalf(ctx, err, "build transferor")
		}

		var mc model.Client
		switch cfg.Model.Provider {
		case providerAnthropic:
			mc, err = anthropic.NewFromAPIKey(cfg.Model.APIKey, cfg.Model.Name)
		case providerOpenAI:
			mc, err = openai.NewFromAPIKey(cfg.Model.APIKey, cfg.Model.Name)
		}
		if err != nil {
			log.Fatalf(ctx, err, "build %s model client", cfg.Model.Provider)
		}
		limits, err := rmap.Join(ctx, modelLimitsMap, rdb)
		if err != nil {
			log.Fatalf(ctx, err, "join model limits map")
		}
		mc = middleware.NewAdaptiveRateLimiter(ctx, limits, cfg.Model.Provider, cfg.Model.TPM, cfg.Model.MaxTPM).Middleware()(mc)
		summarizer, err := summary.New(summary.Options{
			Store:     store,
			Client:    mc,
			MaxTokens: cfg.Model.MaxTokens,
		})
		if err != nil {
			log.Fatalf(ctx, err, "build summarizer")
		}

		// The summary reads the log back from the store, so its trigger
		// hangs off the recorder subscriber: entries are persisted before
		// the model sees the call. Generation runs off the call loop; hook
		// publishes run on the call writer and must not wait on the model.
		record := hooks.SubscriberFunc(func(hctx context.Context, evt hooks.Event) error {
			if err := recorder.HandleEvent(hctx, evt); err != nil {
				return err
			}
			if ended, ok := evt.(*hooks.CallEndedEvent); ok {
				go func() {
					sctx, cancel := context.WithTimeout(ctx, summaryTimeout)
					defer cancel()
					sum, err := summarizer.Summarize(sctx, ended.CallID())
					if err != nil {
						log.Errorf(ctx, err, "summarize call %s", ended.CallID())
						return
					}
					log.Print(sctx, log.KV{K: "call_id", V: sum.CallID}, log.KV{K: "summary", V: sum.Text})
				}()
			}
			return nil
		})
		bus = hooks.NewBus()
		if _, err := bus.Register(record); err != nil {
			log.Fatalf(ctx, err, "register call log recorder")
		}
		if _, err := bus.Register(streams.Sink()); err != nil {
			log.Fatalf(ctx, err, "register live stream sink")
		}
	}

	// Per-call machine factory and the speech gateway.
	var gateway *speech.Handler
	{
		parser, err := uktime.New(uktime.Options{})
		if err != nil {
			log.Fatalf(ctx, err, "build time parser")
		}
		engineOpts := engine.Options{
			Caps:         cfg.Booking.caps(),
			ParseTime:    parser.Parse,
			ParseAddress: address.Parse,
			Welcome:      cfg.Booking.Welcome,
		}
		// Probe machine: surface cap validation errors at boot rather than
		// on the first call.
		if _, err := engine.New(engineOpts); err != nil {
			log.Fatalf(ctx, err, "invalid booking configuration")
		}
		template := call.Options{
			Geocoder:       geocoder,
			Dispatcher:     fleetAPI,
			Amender:        fleetAPI,
			Transferor:     transferor,
			Hooks:          bus,
			Logger:         telemetry.NewClueLogger(),
			Metrics:        telemetry.NewClueMetrics(),
			Tracer:         telemetry.NewClueTracer(),
			BackendTimeout: time.Duration(cfg.Booking.BackendTimeout),
			MailboxSize:    cfg.Booking.MailboxSize,
		}
		gateway, err = speech.NewHandler(speech.HandlerOptions{
			StartCall: newCallStarter(engineOpts, template, callers),
			Logger:    template.Logger,
		})
		if err != nil {
			log.Fatalf(ctx, err, "build speech gateway")
		}
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler so SIGINT and SIGTERM stop the daemon
	// gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)

	checker := health.NewChecker(mongoClient, redisPinger{rdb: rdb})
	handleHTTPServer(ctx, cfg.Listen, gateway, checker, &wg, errc, *dbgF)

	// Wait for signal.
	log.Printf(ctx, "exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	wg.Wait()
	if err := streams.Close(context.Background()); err != nil {
		log.Errorf(ctx, err, "close call streams")
	}
	log.Printf(ctx, "exited")
}

// newCallStarter returns the speech gateway hook that builds one booking
// machine and call shell per accepted connection. The caller's phone number
// arrives as the "phone" query parameter set by the telephony bridge; the
// caller ID vendor enriches it with a display name when configured. Lookup
// failures are treated as absence, never as call failures.
func newCallStarter(engineOpts engine.Options, template call.Options, callers *callerid.Client) speech.CallStarter {
	return func(ctx context.Context, r *http.Request) (*call.Call, error) {
		machine, err := engine.New(engineOpts)
		if err != nil {
			return nil, err
		}
		opts := template
		opts.Machine = machine
		opts.CallerPhone = r.URL.Query().Get("phone")
		if callers != nil && opts.CallerPhone != "" {
			lctx, cancel := context.WithTimeout(ctx, callerLookupTimeout)
			caller, err := callers.Lookup(lctx, opts.CallerPhone)
			cancel()
			switch {
			case err == nil:
				opts.CallerName = caller.Name
			case !errors.Is(err, callerid.ErrNotFound):
				log.Errorf(ctx, err, "caller id lookup")
			}
		}
		return call.New(ctx, opts)
	}
}
