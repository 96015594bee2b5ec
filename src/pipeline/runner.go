package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gantry-runner/src/cache"
	"gantry-runner/src/contracts"
	"gantry-runner/src/junit"
	"gantry-runner/src/logger"
	"gantry-runner/src/sanitize"
)

// Runner executes a pipeline run end to end: cache restore, sequential
// fail-fast stage loop, best-effort cache save. One Runner drives one run
// at a time; independent runs use independent Runners and share only the
// cache store.
type Runner struct {
	pipeline  *Pipeline
	cache     cache.Store
	executor  *Executor
	logger    logger.Logger
	workspace string
	events    func(contracts.RunEvent)
}

// NewRunner creates a runner for the given pipeline. cacheStore may be nil
// to run without dependency caching.
func NewRunner(p *Pipeline, cacheStore cache.Store, workspace string, log logger.Logger) *Runner {
	return &Runner{
		pipeline:  p,
		cache:     cacheStore,
		executor:  NewExecutor(workspace),
		logger:    log,
		workspace: workspace,
	}
}

// SetEventSink registers fn to receive progress events during Execute.
// fn is called synchronously from the run goroutine.
func (r *Runner) SetEventSink(fn func(contracts.RunEvent)) {
	r.events = fn
}

// Execute runs the pipeline for event and returns the run result. Stage
// failures are reported in the result, never as an error; the cache store
// can only affect latency. Apply a deadline through ctx to bound the run.
func (r *Runner) Execute(ctx context.Context, runID string, event contracts.TriggerEvent) *contracts.RunResult {
	result := &contracts.RunResult{
		RunID:     runID,
		Event:     event,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	r.emit(contracts.RunEvent{RunID: runID, Type: contracts.RunEventStarted})
	r.logger.Info("[Runner] Run %s: pipeline %q, %d stages", runID, r.pipeline.Name, len(r.pipeline.Stages))

	r.restoreCaches(ctx)

	aborted := false
	anyFailed := false

	for _, stage := range r.pipeline.Stages {
		sr := contracts.StageResult{
			Name:    stage.Name,
			Command: stage.Run,
		}

		if aborted {
			sr.Outcome = contracts.OutcomeSkipped
			result.Stages = append(result.Stages, sr)
			r.emit(contracts.RunEvent{RunID: runID, Type: contracts.RunEventStageFinished, Stage: &sr})
			continue
		}

		r.emit(contracts.RunEvent{RunID: runID, Type: contracts.RunEventStageStarted, Stage: &sr})
		r.logger.Info("[Runner] Stage %q: %s", stage.Name, stage.Run)

		start := time.Now()
		output, exitCode, err := r.executor.RunStage(ctx, stage, r.pipeline.Env)
		sr.DurationMs = time.Since(start).Milliseconds()
		sr.Output = sanitize.Output(output)
		sr.ExitCode = exitCode

		if err != nil {
			// The command could not be started at all. Fatal to the run,
			// surfaced as a failed stage.
			r.logger.Error("[Runner] Stage %q could not run: %v", stage.Name, err)
			sr.Outcome = contracts.OutcomeFailed
			sr.Output += "\n" + err.Error()
		} else if exitCode == 0 {
			sr.Outcome = contracts.OutcomePassed
		} else {
			sr.Outcome = contracts.OutcomeFailed
		}

		if sr.Outcome == contracts.OutcomeFailed {
			anyFailed = true
			r.logger.Error("[Runner] Stage %q failed (exit %d)", stage.Name, sr.ExitCode)
			if !stage.ContinueOnFailure {
				aborted = true
			}
		} else {
			r.logger.Info("[Runner] Stage %q passed in %dms", stage.Name, sr.DurationMs)
		}

		if stage.Report != "" {
			r.attachReport(stage, result)
		}

		result.Stages = append(result.Stages, sr)
		r.emit(contracts.RunEvent{RunID: runID, Type: contracts.RunEventStageFinished, Stage: &sr})
	}

	// Caches are persisted whatever the verdict; a failed fmt run still
	// paid for dependency downloads worth keeping.
	r.saveCaches(ctx)

	if anyFailed {
		result.Status = contracts.OutcomeFailed
	} else {
		result.Status = contracts.OutcomePassed
	}
	result.FinishedAt = time.Now().UTC().Format(time.RFC3339)

	r.emit(contracts.RunEvent{RunID: runID, Type: contracts.RunEventFinished, Status: result.Status})
	r.logger.Info("[Runner] Run %s finished: %s", runID, result.Status)

	return result
}

// restoreCaches materializes each declared cache key. A miss or a corrupt
// blob is a soft condition: the stage commands start from an empty
// directory and rebuild it.
func (r *Runner) restoreCaches(ctx context.Context) {
	if r.cache == nil {
		return
	}
	for _, mount := range r.pipeline.Caches {
		blob, err := r.cache.Get(ctx, mount.Key)
		if errors.Is(err, cache.ErrMiss) {
			r.logger.Info("[Runner] Cache miss for %s (cold start)", mount.Key)
			continue
		}
		if err != nil {
			r.logger.Error("[Runner] Cache read for %s failed: %v", mount.Key, err)
			continue
		}
		if err := cache.Unpack(blob, mount.Path); err != nil {
			r.logger.Error("[Runner] Cache restore for %s failed: %v", mount.Key, err)
			continue
		}
		r.logger.Info("[Runner] Restored cache %s -> %s", mount.Key, mount.Path)
	}
}

// saveCaches persists each cache directory back to the store. Fire and
// forget: a persist failure is logged and never alters the run result.
func (r *Runner) saveCaches(ctx context.Context) {
	if r.cache == nil {
		return
	}
	for _, mount := range r.pipeline.Caches {
		if _, err := os.Stat(mount.Path); os.IsNotExist(err) {
			r.logger.Debug("[Runner] Cache path %s absent, nothing to persist", mount.Path)
			continue
		}
		blob, err := cache.Pack(mount.Path)
		if err != nil {
			r.logger.Error("[Runner] Cache pack for %s failed: %v", mount.Key, err)
			continue
		}
		if err := r.cache.Put(ctx, mount.Key, blob); err != nil {
			r.logger.Error("[Runner] Cache persist for %s failed (result unaffected): %v", mount.Key, err)
			continue
		}
		r.logger.Info("[Runner] Persisted cache %s (%d bytes)", mount.Key, len(blob))
	}
}

// attachReport parses the stage's JUnit report if it exists and hangs the
// summary off the run result. Report problems are logged, never fatal.
func (r *Runner) attachReport(stage Stage, result *contracts.RunResult) {
	path := stage.Report
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.workspace, path)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.logger.Debug("[Runner] Stage %q left no report at %s", stage.Name, stage.Report)
		return
	}
	if err != nil {
		r.logger.Error("[Runner] Failed to read report for stage %q: %v", stage.Name, err)
		return
	}

	summary, err := junit.Summarize(data)
	if err != nil {
		r.logger.Error("[Runner] Failed to parse report for stage %q: %v", stage.Name, err)
		return
	}
	result.Tests = summary
}

func (r *Runner) emit(ev contracts.RunEvent) {
	if r.events != nil {
		r.events(ev)
	}
}
