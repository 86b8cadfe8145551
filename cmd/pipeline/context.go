package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deepnoodle-ai/pipeline"
	"github.com/deepnoodle-ai/pipeline/executors"
	"github.com/deepnoodle-ai/pipeline/hooks"
	"github.com/deepnoodle-ai/pipeline/sqlite"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *pipeline.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// configPath returns the --config flag value, or "" when unset.
func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*pipeline.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := pipeline.LoadConfig(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		c.logger = pipeline.LoggerFromConfig(cfg)
	})
	return c.logger, nil
}

// stores bundles the persistence backends selected by the config. With
// the sqlite backend one database serves all three roles.
type stores struct {
	store        pipeline.StateStore
	checkpointer pipeline.Checkpointer
	journal      pipeline.Journal
	close        func() error
}

func (c *commandContext) openStores() (*stores, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Backend == "sqlite" {
		db, err := sqlite.Open(cfg.DatabasePath, cfg.MaxCheckpoints)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return &stores{store: db, checkpointer: db, journal: db, close: db.Close}, nil
	}

	store, err := pipeline.NewFileStateStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	checkpointer, err := pipeline.NewFileCheckpointer(cfg.CheckpointDir, cfg.MaxCheckpoints)
	if err != nil {
		return nil, fmt.Errorf("open checkpointer: %w", err)
	}
	journal := pipeline.NewFileJournal(cfg.JournalDir)
	return &stores{
		store:        store,
		checkpointer: checkpointer,
		journal:      journal,
		close:        func() error { return nil },
	}, nil
}

// acquireLock takes the single-instance lock. Mutating commands hold it
// so two processes cannot drive the same workflow concurrently.
func (c *commandContext) acquireLock() (*flock.Flock, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	lock := flock.New(cfg.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another pipeline instance is already running (lock: %s)", cfg.LockPath)
	}
	return lock, nil
}

// orchestratorOptions are the per-command knobs for buildOrchestrator.
type orchestratorOptions struct {
	autoApprove bool
	noInput     bool
}

// buildOrchestrator wires stores, executors, and hooks into an
// orchestrator ready to run or resume workflows.
func (c *commandContext) buildOrchestrator(st *stores, opts orchestratorOptions) (*pipeline.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	runCfg := *cfg
	if opts.autoApprove {
		runCfg.AutoApprove = true
	}

	provider, err := executors.NewCommandProvider(&runCfg, logger)
	if err != nil {
		return nil, err
	}

	workflowHooks := []pipeline.WorkflowHook{hooks.NewConsoleHook()}
	if runCfg.MetricsAddr != "" {
		workflowHooks = append(workflowHooks, hooks.NewMetricsHook(prometheus.DefaultRegisterer))
	}

	var approvalHooks []pipeline.ApprovalHook
	if !opts.noInput && isatty.IsTerminal(os.Stdin.Fd()) {
		approvalHooks = append(approvalHooks, hooks.NewConsoleApprovalHook())
	}
	if topic := runCfg.Notifications.NtfyTopic; topic != "" {
		ntfy, err := hooks.NewNtfyHook(hooks.NtfyHookOptions{
			Topic:   topic,
			Timeout: time.Duration(runCfg.Notifications.RequestTimeout) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		approvalHooks = append(approvalHooks, ntfy)
	}

	return pipeline.NewOrchestrator(pipeline.OrchestratorOptions{
		Config:        &runCfg,
		Store:         st.store,
		Checkpointer:  st.checkpointer,
		Journal:       st.journal,
		Executors:     provider,
		Hooks:         workflowHooks,
		ApprovalHooks: approvalHooks,
		Logger:        logger,
	})
}

// startMetrics serves Prometheus metrics when metrics_addr is configured.
// The returned stop function shuts the server down.
func (c *commandContext) startMetrics() (func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if cfg.MetricsAddr == "" {
		return func() {}, nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	return func() { _ = server.Close() }, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
