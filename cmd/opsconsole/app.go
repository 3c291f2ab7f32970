package main

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/flynn-ai/opsconsole/internal/agent"
	"github.com/flynn-ai/opsconsole/internal/audit"
	"github.com/flynn-ai/opsconsole/internal/config"
	"github.com/flynn-ai/opsconsole/internal/dispatch"
	"github.com/flynn-ai/opsconsole/internal/logging"
	"github.com/flynn-ai/opsconsole/internal/model"
	"github.com/flynn-ai/opsconsole/internal/prompt"
	"github.com/flynn-ai/opsconsole/internal/stats"
	"github.com/flynn-ai/opsconsole/internal/store"
	"github.com/flynn-ai/opsconsole/internal/tools"
)

// app holds the wired pipeline shared by every subcommand.
type app struct {
	cfg       *config.Config
	store     *store.SQLite
	registry  *prometheus.Registry
	stats     *stats.Collector
	tools     *tools.Registry
	publisher audit.Publisher

	dispatcher   *dispatch.Dispatcher
	orchestrator *agent.Orchestrator
}

// newApp loads the configuration and wires the pipeline. Logs go to
// stderr so stdout stays free for command output and the MCP transport.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log, os.Stderr)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := stats.NewCollector(registry)

	reg := tools.NewRegistry(collector)
	if err := reg.Initialize(st); err != nil {
		st.Close()
		return nil, err
	}

	pub, err := audit.New(ctx, cfg.Audit)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Audit.RedisAddr).Msg("event stream unavailable, publishing to log only")
		pub = audit.LogPublisher{}
	}

	// A nil interface, not a nil *Client, when reasoning is off.
	var m model.Model
	if cfg.ReasoningEnabled() {
		m = model.NewClient(model.Config{
			APIKey:      cfg.Reasoning.APIKey,
			BaseURL:     cfg.Reasoning.BaseURL,
			Model:       cfg.Reasoning.Model,
			Timeout:     cfg.Reasoning.Timeout.Duration,
			MaxAttempts: cfg.Reasoning.MaxAttempts,
			MaxTokens:   cfg.Reasoning.MaxTokens,
			Temperature: cfg.Reasoning.Temperature,
		}, collector)
	} else {
		log.Info().Msg("no reasoning credential configured, chat uses the fallback responder")
	}

	a := &app{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		stats:     collector,
		tools:     reg,
		publisher: pub,
		dispatcher: dispatch.New(dispatch.Deps{
			Store:            st,
			Tools:            reg,
			Publisher:        pub,
			Stats:            collector,
			Model:            m,
			AdvancedClassify: cfg.Features.AdvancedClassify,
		}),
	}
	if cfg.Features.Chat {
		a.orchestrator = agent.New(agent.Deps{
			Store:     st,
			Tools:     reg,
			Model:     m,
			Publisher: pub,
			Stats:     collector,
			Limits: prompt.Limits{
				Tasks:    cfg.Snapshot.MaxTasks,
				Projects: cfg.Snapshot.MaxProjects,
				Team:     cfg.Snapshot.MaxTeam,
			},
			Timeout: cfg.Reasoning.Timeout.Duration,
		})
	}
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.publisher.Close(), a.store.Close())
}
