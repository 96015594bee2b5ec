// Package main provides the gantry CLI: a deterministic, cache-accelerated
// verification pipeline runner with a webhook receiver, runner agent, live
// watch TUI, and MCP server as subcommands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gantry-runner/src/agent"
	"gantry-runner/src/broker"
	"gantry-runner/src/cache"
	"gantry-runner/src/config"
	"gantry-runner/src/contracts"
	"gantry-runner/src/github"
	"gantry-runner/src/logger"
	"gantry-runner/src/mcp"
	"gantry-runner/src/pipeline"
	"gantry-runner/src/store"
	"gantry-runner/src/tui"
	"gantry-runner/src/webhook"
)

var (
	appConfig *config.Config
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Gantry - a deterministic CI pipeline runner",
	Long: `Gantry runs a gated verification pipeline for code-change events:
trigger evaluation, sequential fail-fast stages, and best-effort dependency
caching, with a single pass/fail verdict per run.

Modes:
- Local: 'gantry run' executes the pipeline once in this process.
- Distributed: 'gantry serve' receives webhooks and publishes run requests
  to Redpanda; 'gantry agent' consumes and executes them. Set
  REDPANDA_BROKERS to enable distributed mode.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
	},
}

// runCmd executes the pipeline once for a synthetic push event and exits
// with the run's verdict.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline once and exit with its verdict",
	Long: `Runs every stage of the configured pipeline in order against the
workspace, restoring and persisting dependency caches around the stage loop.
Exits 0 iff every stage passed.

Trigger rules are not applied; 'gantry run' is the developer's way of asking
"would CI pass on what I have right now?".

Example:
  gantry run
  gantry run --branch feature/resolver`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewConsoleLogger()
		log.Verbose = verbose

		p, err := pipeline.LoadOrDefault(appConfig.PipelinePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
			os.Exit(1)
		}

		cacheStore, err := newCacheStore(log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache store error: %v\n", err)
			os.Exit(1)
		}
		defer cacheStore.Close()

		branch, _ := cmd.Flags().GetString("branch")
		event := contracts.TriggerEvent{
			Kind:   contracts.EventPush,
			Branch: branch,
			Commit: "local",
		}

		ctx, cancel := context.WithTimeout(context.Background(), appConfig.RunTimeout)
		defer cancel()

		runner := pipeline.NewRunner(p, cacheStore, appConfig.Workspace, log)
		result := runner.Execute(ctx, pipeline.NewRunID(), event)

		fmt.Println()
		fmt.Print(mcp.FormatRunSummary(result))
		os.Exit(result.ExitCode())
	},
}

// serveCmd runs the webhook receiver. In local mode a runner agent is
// started in-process; in distributed mode agents run separately.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive GitHub webhooks and start runs for matching events",
	Long: `Listens for GitHub push and pull_request deliveries, evaluates them
against the pipeline's trigger rules, and starts a run for each accepted
event. Also serves GET /runs and GET /runs/{id} over the run store.

Without REDPANDA_BROKERS the receiver executes runs in-process. With it,
accepted events are published to Redpanda for 'gantry agent' processes.

Example:
  GANTRY_WEBHOOK_SECRET=s3cret gantry serve`,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.NewConsoleLogger()
		log.Verbose = verbose

		p, err := pipeline.LoadOrDefault(appConfig.PipelinePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
			os.Exit(1)
		}
		rules, err := p.Rules()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
			os.Exit(1)
		}

		msgBroker, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Broker error: %v\n", err)
			os.Exit(1)
		}
		defer msgBroker.Close()

		runStore, err := newStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
			os.Exit(1)
		}
		defer runStore.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if !appConfig.Distributed() {
			cacheStore, err := newCacheStore(log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Cache store error: %v\n", err)
				os.Exit(1)
			}
			defer cacheStore.Close()

			runnerAgent := agent.NewAgent(p, msgBroker, runStore, cacheStore,
				appConfig.Workspace, appConfig.RunTimeout, log)
			go func() {
				if err := runnerAgent.Run(ctx); err != nil && ctx.Err() == nil {
					fmt.Fprintf(os.Stderr, "Runner agent error: %v\n", err)
				}
			}()
			log.Info("In-process runner agent started (local mode)")
		}

		srv := webhook.NewServer(rules, msgBroker, runStore,
			github.NewClient(appConfig.GithubToken), appConfig.WebhookSecret, log)

		httpServer := &http.Server{Addr: appConfig.ListenAddr, Handler: srv}
		go func() {
			<-ctx.Done()
			httpServer.Shutdown(context.Background())
		}()

		log.Info("Webhook receiver listening on %s", appConfig.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

// agentCmd runs a standalone runner agent against a Redpanda broker.
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a standalone runner agent (distributed mode)",
	Long: `Consumes run requests from the triggers topic and executes them,
publishing progress events and results. Multiple agents in the same consumer
group split the trigger stream.

Requires REDPANDA_BROKERS.

Example:
  REDPANDA_BROKERS=localhost:19092 gantry agent`,
	Run: func(cmd *cobra.Command, args []string) {
		if !appConfig.Distributed() {
			fmt.Fprintln(os.Stderr, "gantry agent requires REDPANDA_BROKERS; use 'gantry serve' for local mode")
			os.Exit(1)
		}

		log := logger.NewConsoleLogger()
		log.Verbose = verbose

		p, err := pipeline.LoadOrDefault(appConfig.PipelinePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
			os.Exit(1)
		}

		msgBroker, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Broker error: %v\n", err)
			os.Exit(1)
		}
		defer msgBroker.Close()

		runStore, err := newStore()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
			os.Exit(1)
		}
		defer runStore.Close()

		cacheStore, err := newCacheStore(log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache store error: %v\n", err)
			os.Exit(1)
		}
		defer cacheStore.Close()

		ctx, cancel := signalContext()
		defer cancel()

		runnerAgent := agent.NewAgent(p, msgBroker, runStore, cacheStore,
			appConfig.Workspace, appConfig.RunTimeout, log)
		if err := runnerAgent.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Runner agent error: %v\n", err)
			os.Exit(1)
		}
	},
}

// watchCmd follows a run's progress events in the TUI.
var watchCmd = &cobra.Command{
	Use:   "watch [run-id]",
	Short: "Follow a run live in the terminal",
	Long: `Subscribes to the run events topic and renders stage progress as it
happens. With a run ID argument only that run's events are shown; without
one, the first run to emit an event is followed.

Example:
  gantry watch run-20260827T100000-deadbeef`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runID := ""
		if len(args) == 1 {
			runID = args[0]
		}

		p, err := pipeline.LoadOrDefault(appConfig.PipelinePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Pipeline error: %v\n", err)
			os.Exit(1)
		}
		stageNames := make([]string, len(p.Stages))
		for i, s := range p.Stages {
			stageNames[i] = s.Name
		}

		msgBroker, err := newBroker()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Broker error: %v\n", err)
			os.Exit(1)
		}
		defer msgBroker.Close()

		ctx, cancel := signalContext()
		defer cancel()

		msgChan, err := msgBroker.Subscribe(ctx, contracts.TopicRunEvents, "gantry-watch")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Subscribe error: %v\n", err)
			os.Exit(1)
		}

		events := make(chan contracts.RunEvent, 100)
		go func() {
			defer close(events)
			followed := runID
			for msg := range msgChan {
				var ev contracts.RunEvent
				if err := json.Unmarshal(msg.Value, &ev); err != nil {
					continue
				}
				if followed == "" {
					followed = ev.RunID
				}
				if ev.RunID != followed {
					continue
				}
				events <- ev
			}
		}()

		model := tui.NewWatchModel(runID, stageNames, events)
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			os.Exit(1)
		}
	},
}

// mcpCmd serves the run store over MCP on stdio.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve run results over the Model Context Protocol (stdio)",
	Long: `Exposes list_runs, get_run, and get_stage_output tools over stdio
so an assistant can inspect pipeline runs. Requires POSTGRES_DSN, since an
in-memory store would be empty in a fresh process.`,
	Run: func(cmd *cobra.Command, args []string) {
		if appConfig.PostgresDSN == "" {
			fmt.Fprintln(os.Stderr, "gantry mcp requires POSTGRES_DSN")
			os.Exit(1)
		}

		runStore, err := store.NewPostgresStore(appConfig.PostgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
			os.Exit(1)
		}
		defer runStore.Close()

		// stdout belongs to the protocol; nothing may log there.
		if err := mcp.NewServer(runStore).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
			os.Exit(1)
		}
	},
}

// newCacheStore picks the cache backend from configuration: Postgres when a
// DSN is set, the cache directory when configured, in-memory otherwise.
func newCacheStore(log logger.Logger) (cache.Store, error) {
	switch {
	case appConfig.PostgresDSN != "":
		return cache.NewPostgresStore(appConfig.PostgresDSN)
	case appConfig.CacheDir != "":
		return cache.NewDirStore(appConfig.CacheDir)
	default:
		log.Debug("No cache backend configured, caches will not survive this process")
		return cache.NewMemoryStore(), nil
	}
}

func newStore() (store.Store, error) {
	if appConfig.PostgresDSN != "" {
		return store.NewPostgresStore(appConfig.PostgresDSN)
	}
	return store.NewMemoryStore(), nil
}

func newBroker() (broker.Broker, error) {
	if appConfig.Distributed() {
		return broker.NewRedpandaBroker(appConfig.RedpandaBrokers)
	}
	return broker.NewInMemoryBroker(), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	runCmd.Flags().String("branch", "master", "Branch name recorded on the synthetic push event")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
