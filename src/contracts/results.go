package contracts

// Outcome is the terminal state of a stage or a whole run.
type Outcome string

const (
	// OutcomePassed means the command exited zero.
	OutcomePassed Outcome = "passed"
	// OutcomeFailed means the command exited non-zero or the run deadline
	// expired while it ran.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means a required earlier stage failed before this
	// stage got to run.
	OutcomeSkipped Outcome = "skipped"
)

// StageResult records one stage's execution.
type StageResult struct {
	// Name of the stage (e.g. "fmt", "clippy", "test").
	Name string `json:"name"`
	// Command that was (or would have been) executed.
	Command string `json:"command"`
	// Outcome of the stage.
	Outcome Outcome `json:"outcome"`
	// ExitCode of the command. Zero for passed and skipped stages.
	ExitCode int `json:"exit_code"`
	// Output is the combined stdout/stderr, ANSI-stripped.
	Output string `json:"output,omitempty"`
	// DurationMs is wall-clock execution time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// TestSummary aggregates a JUnit report produced by the test stage.
type TestSummary struct {
	Tests    int      `json:"tests"`
	Failures int      `json:"failures"`
	Errors   int      `json:"errors"`
	Skipped  int      `json:"skipped"`
	// Failed holds "suite/test" names for failed and errored cases.
	Failed []string `json:"failed,omitempty"`
}

// RunResult is the final report for a single pipeline run.
// Published to TopicRunResults, keyed by run ID.
type RunResult struct {
	RunID string       `json:"run_id"`
	Event TriggerEvent `json:"event"`
	// Status is OutcomePassed iff every stage passed.
	Status Outcome       `json:"status"`
	Stages []StageResult `json:"stages"`
	// Tests is present when the test stage left a parseable JUnit report.
	Tests      *TestSummary `json:"tests,omitempty"`
	StartedAt  string       `json:"started_at"`
	FinishedAt string       `json:"finished_at"`
}

// Passed reports whether the run as a whole succeeded.
func (r *RunResult) Passed() bool {
	return r.Status == OutcomePassed
}

// ExitCode maps the run status to a process exit code: 0 iff all stages
// passed, 1 otherwise.
func (r *RunResult) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// FailedStage returns the name and exit code of the stage that sank the run,
// or ok=false for a passed run.
func (r *RunResult) FailedStage() (name string, exitCode int, ok bool) {
	for _, s := range r.Stages {
		if s.Outcome == OutcomeFailed {
			return s.Name, s.ExitCode, true
		}
	}
	return "", 0, false
}

// RunStatus is the store's listing view of a run.
type RunStatus struct {
	RunID      string
	Repo       string
	Ref        string
	Commit     string
	Status     string // pending, running, passed, failed
	StageCount int
	StartedAt  string
	FinishedAt string
}

// RunEvent is a per-stage progress notification for live viewers.
// Published to TopicRunEvents, keyed by run ID.
type RunEvent struct {
	RunID string `json:"run_id"`
	// Type is one of run_started, stage_started, stage_finished,
	// run_finished.
	Type  string       `json:"type"`
	Stage *StageResult `json:"stage,omitempty"`
	// Status is set on run_finished.
	Status Outcome `json:"status,omitempty"`
}

// RunEvent types.
const (
	RunEventStarted       = "run_started"
	RunEventStageStarted  = "stage_started"
	RunEventStageFinished = "stage_finished"
	RunEventFinished      = "run_finished"
)
