package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/BE-Provider-Connect/inbox/internal/api"
	"github.com/BE-Provider-Connect/inbox/internal/config"
	"github.com/BE-Provider-Connect/inbox/internal/dispatcher"
	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/failure"
	"github.com/BE-Provider-Connect/inbox/internal/listener"
	"github.com/BE-Provider-Connect/inbox/internal/metrics"
	"github.com/BE-Provider-Connect/inbox/internal/policy"
	"github.com/BE-Provider-Connect/inbox/internal/resolver"
	"github.com/BE-Provider-Connect/inbox/internal/store/postgres"
	"github.com/BE-Provider-Connect/inbox/internal/transport/amqp"
	"github.com/BE-Provider-Connect/inbox/internal/transport/channel"
	"github.com/BE-Provider-Connect/inbox/internal/transport/redisqueue"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`inboxhooks - assistant webhook notification service

Usage:
  inboxhooks <command>

Commands:
  serve      Start event ingestion and the webhook dispatcher
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  INGEST_API_KEY_REF        X-Api-Key required by the HTTP API except /health (default: "ENV:INBOXHOOKS_API_KEY")

  ASSISTANT_WEBHOOK_URL     Assistant service URL or ENV:NAME reference (optional)
  ASSISTANT_API_KEY_REF     Reference to the assistant API key (default: "ENV:ASSISTANT_API_KEY")
  WEBHOOK_TIMEOUT           Per-delivery HTTP timeout (default: "5s")

  DISPATCH_MODE             "channel" or "redis" (default: "channel")
  REDIS_ADDR                Redis address (required for DISPATCH_MODE=redis)
  EVENTBUS_BUFFER_SIZE      In-memory queue capacity (default: "100")
  DISPATCHER_WORKERS        Concurrent deliveries (default: "4")
  DISPATCHER_DRAIN_TIMEOUT  Queue drain timeout on shutdown (default: "30s")

  AMQP_URL                  RabbitMQ URL for event ingestion (optional)
  AMQP_EXCHANGE             Topic exchange (default: "inbox.events")
  AMQP_QUEUE                Queue name (default: "inboxhooks.assistant")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")
  METRICS_PORT              Metrics server port (default: "9090")`)
}

// logConfigWarnings reports risky but valid settings at startup.
func logConfigWarnings(cfg *config.Config) {
	if cfg.DispatchMode == config.DispatchModeChannel {
		log.Println("inboxhooks: INFO: DISPATCH_MODE=channel; queued webhooks are lost on restart")
	}
	if !cfg.MetricsEnabled {
		log.Println("inboxhooks: WARNING [P1]: METRICS_ENABLED=false; config errors and failed deliveries are visible in logs only")
	}
	if cfg.AssistantWebhookURL == "" {
		log.Println("inboxhooks: WARNING [P1]: ASSISTANT_WEBHOOK_URL not set; assistant webhooks need settings.outgoing_url and are sent without an API key")
	}
	if cfg.AMQPURL == "" {
		log.Println("inboxhooks: INFO: AMQP_URL not set; events are accepted on POST /events only")
	}
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}
	logConfigWarnings(&cfg)

	ingestKey, err := resolver.New(resolver.Env()).Resolve(cfg.IngestAPIKeyRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: INGEST_API_KEY_REF: %v\n", err)
		return exitInvalidConfig
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("inboxhooks: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.DBOpTimeout)
	defer cancelStartup()

	if err := db.PingContext(startupCtx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db)

	assistant, err := store.LoadAssistant(startupCtx, cfg.AssistantWebhookURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load assistant: %v\n", err)
		return exitRuntimeError
	}
	log.Printf("inboxhooks: assistant id=%d name=%q enabled=%t target_set=%t",
		assistant.ID, assistant.Name, assistant.Enabled, assistant.OutgoingURL != "")

	// Metrics sink: Prometheus when enabled, no-op otherwise.
	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("inboxhooks: metrics enabled (port=%s, path=%s)", cfg.MetricsPort, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    ":" + cfg.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("inboxhooks: metrics server listening on :%s", cfg.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("inboxhooks: metrics server error: %v", err)
			}
		}()
	}

	failures := failure.New(store).WithMetrics(sink)
	client := dispatcher.NewClient(resolver.New(resolver.Env()), failures, dispatcher.ClientConfig{
		AssistantBaseURL: cfg.AssistantWebhookURL,
		AssistantAPIKey:  cfg.AssistantAPIKeyRef,
		Timeout:          cfg.WebhookTimeout,
	})
	disp := dispatcher.New(client).
		WithWorkers(cfg.DispatcherWorkers).
		WithDrainTimeout(cfg.DispatcherDrainTimeout).
		WithMetrics(sink)

	// Dispatch queue. Both modes feed the dispatcher a channel of QueuedCommand.
	var queue listener.Queue
	var work <-chan domain.QueuedCommand
	var bus *channel.EventBus
	var pumpWg sync.WaitGroup
	pumpCtx, cancelPump := context.WithCancel(context.Background())
	defer cancelPump()

	switch cfg.DispatchMode {
	case config.DispatchModeRedis:
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(startupCtx).Err(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
			return exitRuntimeError
		}

		rq := redisqueue.New(redisClient, redisqueue.WithMetrics(sink))
		out := make(chan domain.QueuedCommand)
		pumpWg.Add(1)
		go func() {
			defer pumpWg.Done()
			rq.Run(pumpCtx, out)
		}()
		queue, work = rq, out
		log.Printf("inboxhooks: dispatch queue redis (addr=%s)", cfg.RedisAddr)
	default:
		bus = channel.NewEventBus(cfg.EventBusBufferSize, channel.WithMetrics(sink))
		queue, work = bus, bus.Channel()
		log.Printf("inboxhooks: dispatch queue channel (buffer=%d)", cfg.EventBusBufferSize)
	}

	assistantListener := listener.New(policy.New(assistant), queue).WithMetrics(sink)

	apiHandler := api.NewHandler(assistantListener, queue, store).
		WithHealthChecker(db).
		WithMetrics(sink).
		WithAPIKey(ingestKey)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiHandler,
	}

	go func() {
		log.Printf("inboxhooks: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("inboxhooks: http server error: %v", err)
		}
	}()

	// Separate contexts for consumer and dispatcher enable ordered shutdown.
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelConsumer()
	defer cancelDispatcher()

	var consumerWg sync.WaitGroup
	var dispatcherWg sync.WaitGroup
	var consumer *amqp.Consumer

	if cfg.AMQPURL != "" {
		consumer, err = amqp.Dial(amqp.Config{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Queue:    cfg.AMQPQueue,
		}, assistantListener)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to amqp: %v\n", err)
			return exitRuntimeError
		}
		consumer = consumer.WithMetrics(sink)

		consumerWg.Add(1)
		go func() {
			defer consumerWg.Done()
			if err := consumer.Run(consumerCtx); err != nil {
				log.Printf("inboxhooks: amqp consumer stopped: %v", err)
			}
		}()
	}

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, work)
	}()

	log.Printf("inboxhooks: started (http=%s, mode=%s, workers=%d)", cfg.HTTPAddr, cfg.DispatchMode, cfg.DispatcherWorkers)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("inboxhooks: received signal %v, shutting down", received)

	// Phase 1: Stop ingestion (no new events accepted)
	if consumer != nil {
		log.Println("inboxhooks: stopping amqp consumer...")
		cancelConsumer()
		consumerWg.Wait()
		if err := consumer.Close(); err != nil {
			log.Printf("inboxhooks: amqp close error: %v", err)
		}
		log.Println("inboxhooks: amqp consumer stopped")
	}

	log.Println("inboxhooks: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("inboxhooks: http server shutdown error: %v", err)
	}
	log.Println("inboxhooks: http server stopped")

	// Phase 2: Stop the queue (redis items stay in Redis for the next instance)
	if bus != nil {
		bus.Close()
	}
	cancelPump()
	pumpWg.Wait()

	// Phase 3: Stop dispatcher (drains buffered commands before returning)
	log.Println("inboxhooks: stopping dispatcher (draining queue)...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Println("inboxhooks: dispatcher stopped")

	// Phase 4: Stop metrics server if running
	if metricsServer != nil {
		log.Println("inboxhooks: stopping metrics server...")
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer metricsShutdownCancel()
		if err := metricsServer.Shutdown(metricsShutdownCtx); err != nil {
			log.Printf("inboxhooks: metrics server shutdown error: %v", err)
		}
		log.Println("inboxhooks: metrics server stopped")
	}

	log.Println("inboxhooks: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("inboxhooks version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
