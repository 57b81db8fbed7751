package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"loan-queue/internal/clock"
	"loan-queue/internal/config"
	"loan-queue/internal/events"
	"loan-queue/internal/handler"
	"loan-queue/internal/logging"
	"loan-queue/internal/metrics"
	"loan-queue/internal/repository"
	"loan-queue/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	dbPath := flag.String("db", "", "path to SQLite database (overrides config)")
	port := flag.String("port", "", "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *dbPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.SQLitePath = *dbPath
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal().Err(err).Msg("failed to configure logging")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize repository
	repo, err := repository.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to initialize repository")
	}
	defer repo.Close()

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsInstance := metrics.NewMetrics(reg)

	sink := buildSink(ctx, cfg.Events)
	clk := clock.System{}
	loc := cfg.Location()

	// Initialize services
	rateLimiter := service.NewRateLimiter(clk, cfg.Queue.MaxActiveLoansPerMember, cfg.Queue.MaxSubmissionsPerMinute)
	queueService := service.NewQueueService(repo, repo, rateLimiter, sink, metricsInstance, clk, service.Options{
		Queue:      cfg.Queue,
		Location:   loc,
		MemberRole: cfg.Auth.MemberRole,
	})
	analyticsService := service.NewAnalyticsService(repo, clk, loc)
	monitor := service.NewQueueMonitor(repo, metricsInstance)

	// Initialize handlers
	loanHandler := handler.NewLoanHandler(queueService, analyticsService)

	mux := http.NewServeMux()
	loanHandler.Register(mux, cfg.Auth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler.CORS(cfg.Server.CORSOrigin, handler.AccessLog(cfg.Server.RequestTimeout, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := monitor.Run(ctx, cfg.Monitor.Interval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("queue monitor stopped")
		}
	}()

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("driver", cfg.Storage.Driver).Msg("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error closing server")
	}
	log.Info().Msg("server stopped")
}

// buildSink always logs activity and adds Redis and PubNub delivery when
// they are configured
func buildSink(ctx context.Context, cfg config.EventsConfig) events.Sink {
	sinks := events.Multi{events.LogSink{}}

	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, activity will not be mirrored")
		} else {
			sinks = append(sinks, events.NewRedisSink(client, cfg.RedisList, cfg.RedisChannel, cfg.ListMaxLen))
			log.Info().Str("list", cfg.RedisList).Str("channel", cfg.RedisChannel).Msg("redis activity sink enabled")
		}
	}

	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		publisher := events.NewPubNubPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUserID)
		sinks = append(sinks, events.NewPubNubSink(publisher))
		log.Info().Msg("pubnub member notifications enabled")
	}

	return sinks
}
