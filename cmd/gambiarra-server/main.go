// Package main provides the CLI entry point for the gambiarra orchestration
// server: the LLM-facing half of gambiarra's two-process architecture. It
// accepts websocket connections from workspace clients, drives each
// session's AgenticLoop against configured LLM providers, and never
// touches the filesystem or a shell directly — that trust boundary lives
// entirely in gambiarra-client.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/trustgraph-ai/gambiarra/internal/agent"
	"github.com/trustgraph-ai/gambiarra/internal/config"
	"github.com/trustgraph-ai/gambiarra/internal/observability"
	"github.com/trustgraph-ai/gambiarra/internal/provider"
	"github.com/trustgraph-ai/gambiarra/internal/toolcall"
	"github.com/trustgraph-ai/gambiarra/internal/transport"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const serverVersion = "1"

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd(logger)
	if err := root.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:     "gambiarra-server",
		Short:   "Gambiarra orchestration server",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "gambiarra-server.yaml", "path to server configuration")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(context.Background(), logger)
		},
	})

	return root
}

func runServe(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	providerSet, err := buildProviders(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	if len(providerSet) == 0 {
		return errors.New("no LLM providers configured")
	}

	samplingRate := cfg.Server.OtelSamplingRate
	if samplingRate <= 0 {
		samplingRate = 1.0
	}
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "gambiarra-server",
		ServiceVersion: version,
		Endpoint:       cfg.Server.OtelEndpoint,
		SamplingRate:   samplingRate,
	})
	defer func() {
		_ = shutdownTracer(context.Background())
	}()
	metrics := observability.NewMetrics()

	router := provider.NewRouter(routingConfig(cfg.LLM), providerSet)
	modeFilter := agent.NewModeFilter(logger)
	loop := agent.NewAgenticLoop(logger, router, modeFilter, agent.LoopConfig{
		SystemPrompt: defaultSystemPrompt,
		Metrics:      metrics,
		Tracer:       tracer,
	})

	mux := http.NewServeMux()
	if cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
			logger.Info("server: metrics listening", "addr", addr)
			if err := http.ListenAndServe(addr, metricsMux); err != nil && err != http.ErrServerClosed {
				logger.Error("server: metrics listener failed", "error", err)
			}
		}()
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := transport.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("server: websocket upgrade failed", "error", err)
			return
		}
		tc := transport.New(logger, ws)
		c := newConnection(logger, loop, tc)
		if err := tc.Run(r.Context(), c.handle(r.Context())); err != nil {
			logger.Info("server: connection closed", "error", err)
		}
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-runCtx.Done():
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server: shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func routingConfig(cfg config.LLMConfig) provider.Config {
	rules := make([]provider.Rule, 0, len(cfg.Routing.Rules))
	for _, r := range cfg.Routing.Rules {
		rules = append(rules, provider.Rule{
			Name:   r.Name,
			Match:  provider.Match{Patterns: r.Match.Patterns, Tags: r.Match.Tags},
			Target: provider.Target{Provider: r.Target.Provider, Model: r.Target.Model},
		})
	}
	var classifier provider.Classifier
	if cfg.Routing.Enabled {
		classifier = &provider.HeuristicClassifier{}
	}
	return provider.Config{
		DefaultProvider: cfg.DefaultProvider,
		PreferLocal:     cfg.Routing.PreferLocal,
		Rules:           rules,
		Classifier:      classifier,
		Fallback:        provider.Target{Provider: cfg.Routing.Fallback.Provider, Model: cfg.Routing.Fallback.Model},
		FailureCooldown: cfg.Routing.UnhealthyCooldown,
	}
}

func knownToolNames() []string {
	return append([]string(nil), toolcall.KnownTools...)
}

func errUnknownSession(id string) error {
	return fmt.Errorf("no session with id %q", id)
}

func mustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

const defaultSystemPrompt = `You are Gambiarra, an autonomous coding agent. You act by emitting ` +
	`one <TOOL><args>...</args></TOOL> block per turn from the tool set the ` +
	`workspace client exposes, and you finish a task with attempt_completion.`
