// Command pce-server is the Persistent Cognition Engine's HTTP entrypoint:
// it resolves configuration, opens the state store, wires the plugin
// registry and the eight pipeline stages, starts the approval TTL sweeper,
// and serves the HTTP surface until interrupted.
//
// Grounded on cmd/helm/main.go's runServer wiring style (lite-mode store
// setup, health endpoint, signal-driven graceful shutdown).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcehq/pce/pkg/afs"
	"github.com/pcehq/pce/pkg/ao"
	"github.com/pcehq/pce/pkg/approval"
	"github.com/pcehq/pce/pkg/cci"
	"github.com/pcehq/pce/pkg/de"
	"github.com/pcehq/pce/pkg/epl"
	"github.com/pcehq/pce/pkg/isi"
	"github.com/pcehq/pce/pkg/llm"
	"github.com/pcehq/pce/pkg/pceapi"
	"github.com/pcehq/pce/pkg/pceconfig"
	"github.com/pcehq/pce/pkg/pcestore"
	"github.com/pcehq/pce/pkg/pipeline"
	"github.com/pcehq/pce/pkg/plugins"
	"github.com/pcehq/pce/pkg/plugins/assistant"
	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/plugins/robotics"
	"github.com/pcehq/pce/pkg/plugins/rover"
	"github.com/pcehq/pce/pkg/plugins/trader"
	"github.com/pcehq/pce/pkg/transcript"
	"github.com/pcehq/pce/pkg/vel"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pce-server", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file overriding built-in defaults")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := pceconfig.Load(*configPath)
	if err != nil {
		slog.Error("pce-server: load config", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := pcestore.Open(ctx, cfg.StateDBPath)
	if err != nil {
		slog.Error("pce-server: open store", "err", err, "path", cfg.StateDBPath)
		return 1
	}
	defer store.Close()

	registry, roverStorage, assistantStorage := buildRegistry(cfg, store)

	validator, err := epl.New()
	if err != nil {
		slog.Error("pce-server: build validator", "err", err)
		return 1
	}
	decision, err := de.New(registry, de.Floors{ValueFloor: cfg.Assistant.ValueFloor, CCIFloor: cfg.Assistant.CCIFloor})
	if err != nil {
		slog.Error("pce-server: build decision engine", "err", err)
		return 1
	}
	gate := approval.New(store, robotics.BudgetChecker{Loader: store}, cfg.ApprovalTTL())
	cciEngine := cci.New(store, weightsFrom(cfg))
	bcast := transcript.New(store)

	pl := pipeline.New(pipeline.Deps{
		Store:              store,
		Validator:          validator,
		Integrator:         isi.New(registry),
		Evaluator:          vel.New(registry),
		CCI:                cciEngine,
		Decision:           decision,
		Gate:               gate,
		Orchestrator:       ao.New(registry),
		Adapter:            afs.New(registry),
		Transcript:         bcast,
		TraderStartingCash: trader.DefaultConfig().StartingCash,
	})

	sweepInterval := cfg.ApprovalSweepInterval()
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	go gate.RunSweeper(ctx, sweepInterval)

	srv := pceapi.New(pceapi.Deps{
		Pipeline:   pl,
		Store:      store,
		Gate:       gate,
		CCI:        cciEngine,
		Transcript: bcast,
		Validator:  validator,
		Assistant:  assistantStorage,
		Rover:      roverStorage,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("pce-server: listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("pce-server: http server error", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("pce-server: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("pce-server: graceful shutdown failed", "err", err)
		return 1
	}
	return 0
}

// buildRegistry wires every domain plugin into one Plugin Registry, core
// plus the four supplemented/specified domains, and returns the
// rover/assistant storage handles pceapi needs for its control endpoints.
func buildRegistry(cfg pceconfig.Config, store *pcestore.Store) (*plugins.Registry, *rover.Storage, *assistant.Storage) {
	registry := plugins.NewRegistry(plugins.Domain{
		Name:       core.Name,
		Integrator: core.Integrator{},
		Value:      core.NewValue(core.DefaultStrategicValues()),
		Decision:   core.Decision{},
		Adaptation: core.Adaptation{},
	})

	registry.Register(robotics.New())
	registry.Register(rover.New(store))
	registry.Register(trader.New(store, trader.DefaultConfig()))

	llmClient := llm.New(llm.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		BaseURL:     cfg.OpenRouter.BaseURL,
		Timeout:     cfg.OpenRouterTimeout(),
		HTTPReferer: cfg.OpenRouter.HTTPReferer,
		XTitle:      cfg.OpenRouter.XTitle,
	})
	registry.Register(assistant.New(store, llmClient, cfg.Assistant.ValueFloor, cfg.Assistant.CCIFloor))

	return registry, rover.NewStorage(store), assistant.NewStorage(store)
}

func weightsFrom(cfg pceconfig.Config) cci.Weights {
	w := cci.DefaultWeights()
	if len(cfg.CCI.Weights) == 0 {
		return w
	}
	if v, ok := cfg.CCI.Weights["consistency"]; ok {
		w.Consistency = v
	}
	if v, ok := cfg.CCI.Weights["stability"]; ok {
		w.Stability = v
	}
	if v, ok := cfg.CCI.Weights["contradiction_rate"]; ok {
		w.ContradictionRate = v
	}
	if v, ok := cfg.CCI.Weights["predictive_accuracy"]; ok {
		w.PredictiveAccuracy = v
	}
	return w
}
