// Package agent provides the runner agent. It consumes accepted run
// requests from the broker, executes the pipeline for each, and publishes
// progress events and the final result.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gantry-runner/src/broker"
	"gantry-runner/src/cache"
	"gantry-runner/src/contracts"
	"gantry-runner/src/logger"
	"gantry-runner/src/pipeline"
	"gantry-runner/src/store"
)

// consumerGroup coordinates multiple runner agents so each run request is
// executed exactly once.
const consumerGroup = "gantry-runner"

// Agent consumes run requests and executes pipeline runs.
type Agent struct {
	pipeline  *pipeline.Pipeline
	broker    broker.Broker
	store     store.Store
	cache     cache.Store
	workspace string
	timeout   time.Duration
	logger    logger.Logger
}

// NewAgent creates a runner agent. st may be nil to skip persistence and
// cacheStore may be nil to run without dependency caching. timeout bounds
// each run; zero means unbounded.
func NewAgent(p *pipeline.Pipeline, brk broker.Broker, st store.Store, cacheStore cache.Store, workspace string, timeout time.Duration, log logger.Logger) *Agent {
	return &Agent{
		pipeline:  p,
		broker:    brk,
		store:     st,
		cache:     cacheStore,
		workspace: workspace,
		timeout:   timeout,
		logger:    log,
	}
}

// Run starts the agent's main loop. It subscribes to the triggers topic and
// executes incoming run requests sequentially until ctx ends or the broker
// closes.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("[RunnerAgent] Starting...")

	msgChan, err := a.broker.Subscribe(ctx, contracts.TopicTriggers, consumerGroup)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", contracts.TopicTriggers, err)
	}

	a.logger.Info("[RunnerAgent] Listening for run requests on '%s' topic...", contracts.TopicTriggers)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				a.logger.Info("[RunnerAgent] Message channel closed, shutting down")
				return nil
			}

			if err := a.processRequest(ctx, msg); err != nil {
				a.logger.Error("[RunnerAgent] Error processing run request: %v", err)
			}

		case <-ctx.Done():
			a.logger.Info("[RunnerAgent] Context cancelled, shutting down")
			return ctx.Err()
		}
	}
}

// processRequest executes one run request end to end.
func (a *Agent) processRequest(ctx context.Context, msg broker.Message) error {
	var request contracts.RunRequest
	if err := json.Unmarshal(msg.Value, &request); err != nil {
		return fmt.Errorf("failed to unmarshal run request: %w", err)
	}

	a.logger.Info("[RunnerAgent] Processing run %s (%s on %s)",
		request.RunID, request.Event.Kind, request.Event.Ref())

	if a.store != nil {
		if err := a.store.MarkRunning(ctx, request.RunID); err != nil && !errors.Is(err, store.ErrNotFound) {
			a.logger.Error("[RunnerAgent] Failed to mark run %s running: %v", request.RunID, err)
		}
	}

	runner := pipeline.NewRunner(a.pipeline, a.cache, a.workspace, a.logger)
	runner.SetEventSink(func(ev contracts.RunEvent) {
		a.publishEvent(ctx, ev)
	})

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	result := runner.Execute(runCtx, request.RunID, request.Event)

	if a.store != nil {
		if err := a.store.SaveResult(ctx, result); err != nil {
			a.logger.Error("[RunnerAgent] Failed to persist result for %s: %v", request.RunID, err)
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := a.broker.Publish(ctx, contracts.TopicRunResults, result.RunID, data); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	a.logger.Info("[RunnerAgent] Completed run %s: %s", result.RunID, result.Status)
	return nil
}

// publishEvent forwards a progress event to the run events topic. Event
// delivery is best effort; losing one never affects the run.
func (a *Agent) publishEvent(ctx context.Context, ev contracts.RunEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		a.logger.Error("[RunnerAgent] Failed to marshal run event: %v", err)
		return
	}
	if err := a.broker.Publish(ctx, contracts.TopicRunEvents, ev.RunID, data); err != nil {
		a.logger.Debug("[RunnerAgent] Failed to publish run event: %v", err)
	}
}
