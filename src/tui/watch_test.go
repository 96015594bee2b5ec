package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"gantry-runner/src/contracts"
)

func applyEvents(m WatchModel, events ...contracts.RunEvent) WatchModel {
	for _, ev := range events {
		next, _ := m.Update(EventMsg(ev))
		m = next.(WatchModel)
	}
	return m
}

func sized(m WatchModel) WatchModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(WatchModel)
}

func TestWatchShowsPreSeededStages(t *testing.T) {
	m := sized(NewWatchModel("run-1", []string{"fmt", "clippy", "test"}, nil))

	view := m.View()
	for _, name := range []string{"fmt", "clippy", "test"} {
		if !strings.Contains(view, name) {
			t.Errorf("Expected stage %q in view:\n%s", name, view)
		}
	}
	if !strings.Contains(view, "run-1") {
		t.Error("Expected run ID in view")
	}
}

func TestWatchAppliesStageOutcomes(t *testing.T) {
	m := sized(NewWatchModel("run-1", []string{"fmt", "test"}, nil))

	m = applyEvents(m,
		contracts.RunEvent{RunID: "run-1", Type: contracts.RunEventStarted},
		contracts.RunEvent{RunID: "run-1", Type: contracts.RunEventStageFinished, Stage: &contracts.StageResult{
			Name: "fmt", Outcome: contracts.OutcomePassed, DurationMs: 120,
		}},
		contracts.RunEvent{RunID: "run-1", Type: contracts.RunEventStageFinished, Stage: &contracts.StageResult{
			Name: "test", Outcome: contracts.OutcomeFailed, ExitCode: 1, Output: "assertion failed",
		}},
		contracts.RunEvent{RunID: "run-1", Type: contracts.RunEventFinished, Status: contracts.OutcomeFailed},
	)

	if !m.Finished() {
		t.Fatal("Expected model finished after run_finished event")
	}

	view := m.View()
	if !strings.Contains(view, "✓") {
		t.Error("Expected passed marker in view")
	}
	if !strings.Contains(view, "✗") {
		t.Error("Expected failed marker in view")
	}
	if !strings.Contains(view, "FAILED") {
		t.Error("Expected FAILED badge in view")
	}
}

func TestWatchSkippedStageMarker(t *testing.T) {
	m := sized(NewWatchModel("run-1", []string{"fmt", "test"}, nil))
	m = applyEvents(m,
		contracts.RunEvent{Type: contracts.RunEventStageFinished, Stage: &contracts.StageResult{
			Name: "fmt", Outcome: contracts.OutcomeFailed, ExitCode: 1,
		}},
		contracts.RunEvent{Type: contracts.RunEventStageFinished, Stage: &contracts.StageResult{
			Name: "test", Outcome: contracts.OutcomeSkipped,
		}},
	)

	if m.stages[1].outcome != contracts.OutcomeSkipped {
		t.Errorf("Expected skipped outcome, got %s", m.stages[1].outcome)
	}
}

func TestWatchCursorSelectsStageOutput(t *testing.T) {
	m := sized(NewWatchModel("run-1", []string{"fmt", "test"}, nil))
	m = applyEvents(m,
		contracts.RunEvent{Type: contracts.RunEventStageFinished, Stage: &contracts.StageResult{
			Name: "fmt", Outcome: contracts.OutcomePassed, Output: "all formatted",
		}},
		contracts.RunEvent{Type: contracts.RunEventStageFinished, Stage: &contracts.StageResult{
			Name: "test", Outcome: contracts.OutcomePassed, Output: "12 tests passed",
		}},
	)

	if !strings.Contains(m.View(), "all formatted") {
		t.Error("Expected first stage output shown by default")
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(WatchModel)
	if !strings.Contains(m.View(), "12 tests passed") {
		t.Error("Expected second stage output after moving cursor")
	}
}

func TestWatchLearnsUnseededStage(t *testing.T) {
	m := sized(NewWatchModel("run-1", nil, nil))
	m = applyEvents(m, contracts.RunEvent{Type: contracts.RunEventStageStarted, Stage: &contracts.StageResult{
		Name: "surprise", Command: "true",
	}})

	if len(m.stages) != 1 || m.stages[0].name != "surprise" {
		t.Errorf("Expected stage learned from event, got %+v", m.stages)
	}
	if !m.stages[0].running {
		t.Error("Expected stage marked running")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("cargo clippy --all-features", 10); got != "cargo c..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("fmt", 10); got != "fmt" {
		t.Errorf("Truncate = %q", got)
	}
	if got := TruncateAndPad("fmt", 6); got != "fmt   " {
		t.Errorf("TruncateAndPad = %q", got)
	}
}
