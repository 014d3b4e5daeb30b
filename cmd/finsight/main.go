package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finsight/internal/advisor"
	"finsight/internal/agents"
	"finsight/internal/config"
	"finsight/internal/insight"
	"finsight/internal/intercept"
	"finsight/internal/llm"
	"finsight/internal/logging"
	"finsight/internal/monitor"
	"finsight/internal/portfolio"
	"finsight/internal/prices"
	"finsight/internal/proactive"
	"finsight/internal/referral"
	"finsight/internal/router"
	"finsight/internal/rules"
	"finsight/internal/search"
	"finsight/internal/server"
	"finsight/internal/snapshot"
	"finsight/internal/store"
	"finsight/internal/synthesis"
	"finsight/internal/turn"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "finsight - conversational financial intelligence backend",
	Long: `finsight is a multi-agent financial analysis backend for Canadian
personal investing. Domain agents (allocation, tax, tax-loss harvesting,
rate arbitrage, timing) analyse a live portfolio snapshot; a router,
cross-referral expander and response synthesizer turn their findings into
a conversational SSE stream.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Verbose = true
		}
		if err := logging.Initialize(cfg.Logging.Verbose); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		loaded = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// loaded is the config resolved in PersistentPreRunE.
var loaded *config.Config

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/SSE server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run every domain agent once and print the merged findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.Context())
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the advisor briefing and print it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd.Context())
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "session-clear",
	Short: "Delete today's conversation so the next session starts fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(loaded)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.ClearToday(store.DemoUserID, time.Now().UTC()); err != nil {
			return err
		}
		fmt.Println("cleared")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, analyzeCmd, reportCmd, sessionClearCmd)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, err
	}
	if cfg.Store.SeedDemoUser {
		if err := st.SeedDemo(); err != nil {
			st.Close()
			return nil, err
		}
	}
	return st, nil
}

// app holds the fully wired dependency graph shared by every command.
type app struct {
	cfg     *config.Config
	store   *store.Store
	rules   *rules.Provider
	invoker *agents.Invoker
	synth   *synthesis.Synthesizer
	snapFn  func(ctx context.Context) (snapshot.Snapshot, error)
	prices  *prices.Service
	client  llm.Client
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	prov, err := rules.NewProvider(cfg.Rules.Path)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if cfg.Rules.Watch {
		if err := prov.Watch(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("rules watch unavailable", zap.Error(err))
		}
	}

	client, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		prov.Close()
		st.Close()
		return nil, nil, err
	}

	pricesSvc := prices.NewService()
	pf := portfolio.NewService(st, pricesSvc, store.DemoUserID)

	a := &app{
		cfg:     cfg,
		store:   st,
		rules:   prov,
		invoker: agents.NewInvoker(client),
		synth:   synthesis.New(client),
		snapFn:  pf.Snapshot,
		prices:  pricesSvc,
		client:  client,
	}
	cleanup := func() {
		prov.Close()
		st.Close()
	}
	return a, cleanup, nil
}

func runServe(ctx context.Context) error {
	log := logging.Get(logging.CategoryBoot)
	cfg := loaded

	a, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := turn.NewOrchestrator(turn.Deps{
		Store:          a.store,
		Router:         router.New(a.client),
		Invoker:        a.invoker,
		Expander:       referral.New(a.client, cfg.Referral.Budget),
		Synthesizer:    a.synth,
		Search:         search.New(),
		Snapshot:       a.snapFn,
		Rules:          a.rules,
		ReferralBudget: cfg.Referral.Budget,
	})

	deps := server.Deps{
		Config:       cfg.Server,
		Store:        a.store,
		Orchestrator: orch,
		Proactive:    proactive.NewGenerator(a.invoker, a.synth, a.snapFn),
		Advisor:      advisor.NewGenerator(a.store, a.invoker, a.synth, a.snapFn),
		Intercept:    intercept.NewChecker(a.invoker, cfg.Intercept.Deadline, cfg.Intercept.MaterialThreshold),
		Invoker:      a.invoker,
		Prices:       a.prices,
		Snapshot:     a.snapFn,
		Rules:        a.rules,
	}

	var mon *monitor.Monitor
	if cfg.Monitor.Enabled {
		mon = monitor.New(a.store, a.snapFn, monitor.NewMemoryCooldowns(),
			cfg.Monitor.Interval, cfg.Monitor.StartupDelay)
		mon.Start(ctx)
		deps.Alerts = mon.Broadcaster()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("version", cfg.Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	if mon != nil {
		mon.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAnalyze(ctx context.Context) error {
	a, cleanup, err := buildApp(ctx, loaded)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := a.snapFn(ctx)
	if err != nil {
		return fmt.Errorf("failed to build portfolio snapshot: %w", err)
	}

	outcomes := a.invoker.RunAll(ctx, agents.All(), snap, a.rules.Current())
	var results []insight.CapabilityResult
	for _, o := range outcomes {
		if o.Err != nil {
			logging.Get(logging.CategoryAgents).Warn("agent failed",
				zap.String("agent", string(o.Agent)), zap.Error(o.Err))
			continue
		}
		results = append(results, o.Result())
	}

	out, err := json.MarshalIndent(insight.Merge(results...), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runReport(ctx context.Context) error {
	a, cleanup, err := buildApp(ctx, loaded)
	if err != nil {
		return err
	}
	defer cleanup()

	gen := advisor.NewGenerator(a.store, a.invoker, a.synth, a.snapFn)
	report, err := gen.Generate(ctx, store.DemoUserID, a.rules.Current())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
