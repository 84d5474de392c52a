// Command sentinel is the SRE Sentinel agent: it watches labeled Docker
// containers, classifies anomalies, and runs the incident pipeline
// against them, exposing live telemetry over REST, WebSocket, and
// Prometheus.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aryan877/sre-sentinel/internal/aiclient"
	"github.com/aryan877/sre-sentinel/internal/config"
	"github.com/aryan877/sre-sentinel/internal/dockerobserver"
	"github.com/aryan877/sre-sentinel/internal/eventbus"
	"github.com/aryan877/sre-sentinel/internal/gateway"
	"github.com/aryan877/sre-sentinel/internal/incident"
	"github.com/aryan877/sre-sentinel/internal/metrics"
	"github.com/aryan877/sre-sentinel/internal/redact"
	"github.com/aryan877/sre-sentinel/internal/telemetry"
	"github.com/rs/zerolog"
)

// Version is the release tag, overridden at build time via -ldflags.
var Version = "dev"

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "version" {
			fmt.Printf("sentinel version %s\n", Version)
			os.Exit(0)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("sentinel terminated with error")
	}
	log.Info().Msg("sentinel stopped")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	metricsReg := metrics.New()

	var store eventbus.Store
	if addr := cfg.RedisAddr(); addr != "" {
		client := eventbus.NewRedisClient(addr, cfg.RedisPassword, cfg.RedisDB)
		store = eventbus.NewRedisStore(client, eventbus.HistoryLimit)
		log.Info().Str("addr", addr).Msg("using Redis-backed event history")
	} else {
		store = eventbus.NewMemoryStore(eventbus.HistoryLimit)
		log.Info().Msg("using in-memory event history")
	}
	bus := eventbus.New(store, eventbus.DefaultQueueDepth, log)

	dockerClient, err := dockerobserver.NewRealClient()
	if err != nil {
		return fmt.Errorf("connect to docker: %w", err)
	}
	defer dockerClient.Close()

	observer := dockerobserver.New(dockerClient, bus, nil, log)

	transport := aiclient.NewTransport(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, cfg.MCPTimeout, log)
	fastClassifier := aiclient.NewFastClassifier(transport, cfg.CerebrasModel, log)
	deepAnalyzer := aiclient.NewDeepAnalyzer(transport, cfg.LlamaModel, log)
	envClassifier := aiclient.NewEnvClassifier(transport, cfg.CerebrasModel)
	redactor := redact.NewBuilder(envClassifier, log)

	gatewayClient := gateway.NewClient(cfg.MCPGatewayURL, cfg.MCPTimeout, cfg.AutoHealEnabled, log).WithMetrics(metricsReg)

	incidentStore := incident.NewStore()
	pipeline := incident.New(bus, deepAnalyzer, gatewayClient, observer, redactor, incidentStore, log).WithMetrics(metricsReg)
	trigger := incident.NewTrigger(fastClassifier, pipeline, log)
	observer.SetChecker(trigger)

	telemetryServer := telemetry.New(observer, incidentStore, bus, log)

	mux := http.NewServeMux()
	mux.Handle("/", telemetryServer.Handler())
	mux.Handle("/metrics", metricsReg.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	group := make(chan error, 2)
	go func() {
		log.Info().Str("addr", addr).Msg("starting telemetry server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			group <- fmt.Errorf("telemetry server: %w", err)
			return
		}
		group <- nil
	}()
	go func() {
		group <- observer.Run(ctx)
	}()

	go reportQueueDepth(ctx, bus, metricsReg)

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	for i := 0; i < 2; i++ {
		if err := <-group; err != nil && err != context.Canceled {
			log.Warn().Err(err).Msg("component stopped with error")
		}
	}

	return context.Canceled
}

// reportQueueDepth periodically mirrors the bus's live subscriber count
// onto the Prometheus gauge (§4.10).
func reportQueueDepth(ctx context.Context, bus *eventbus.Bus, reg *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.EventBusQueueDepth.Set(float64(bus.SubscriberCount()))
		}
	}
}
