package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"gantry-runner/src/cache"
	"gantry-runner/src/contracts"
	"gantry-runner/src/logger"
)

func testPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{Name: "test", Stages: stages}
}

func executeRun(t *testing.T, p *Pipeline, store cache.Store) *contracts.RunResult {
	t.Helper()
	r := NewRunner(p, store, t.TempDir(), logger.NewSilentLogger())
	return r.Execute(context.Background(), NewRunID(), contracts.TriggerEvent{
		Kind:   contracts.EventPush,
		Branch: "master",
	})
}

func TestExecuteAllStagesPass(t *testing.T) {
	result := executeRun(t, testPipeline(
		Stage{Name: "fmt", Run: "true"},
		Stage{Name: "clippy", Run: "true"},
		Stage{Name: "test", Run: "true"},
	), nil)

	if !result.Passed() {
		t.Fatalf("Expected passed run, got %s", result.Status)
	}
	if result.ExitCode() != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode())
	}
	for _, s := range result.Stages {
		if s.Outcome != contracts.OutcomePassed {
			t.Errorf("Stage %q = %s, want passed", s.Name, s.Outcome)
		}
	}
}

func TestExecuteFailFastSkipsRemainingStages(t *testing.T) {
	result := executeRun(t, testPipeline(
		Stage{Name: "fmt", Run: "exit 1"},
		Stage{Name: "clippy", Run: "true"},
		Stage{Name: "test", Run: "true"},
	), nil)

	if result.Passed() {
		t.Fatal("Expected failed run")
	}
	if result.ExitCode() != 1 {
		t.Errorf("Expected exit code 1, got %d", result.ExitCode())
	}

	if result.Stages[0].Outcome != contracts.OutcomeFailed {
		t.Errorf("Stage fmt = %s, want failed", result.Stages[0].Outcome)
	}
	if result.Stages[0].ExitCode != 1 {
		t.Errorf("Stage fmt exit = %d, want 1", result.Stages[0].ExitCode)
	}
	for _, s := range result.Stages[1:] {
		if s.Outcome != contracts.OutcomeSkipped {
			t.Errorf("Stage %q = %s, want skipped", s.Name, s.Outcome)
		}
	}

	name, exit, ok := result.FailedStage()
	if !ok || name != "fmt" || exit != 1 {
		t.Errorf("FailedStage = %q %d %v, want fmt 1 true", name, exit, ok)
	}
}

func TestExecuteContinueOnFailureKeepsGoing(t *testing.T) {
	result := executeRun(t, testPipeline(
		Stage{Name: "lint", Run: "exit 2", ContinueOnFailure: true},
		Stage{Name: "test", Run: "true"},
	), nil)

	if result.Stages[1].Outcome != contracts.OutcomePassed {
		t.Errorf("Expected later stage to run, got %s", result.Stages[1].Outcome)
	}
	// A tolerated failure still fails the run.
	if result.Passed() {
		t.Error("Expected run to be failed overall")
	}
}

func TestExecuteCacheRoundTrip(t *testing.T) {
	store := cache.NewMemoryStore()
	cacheDir := filepath.Join(t.TempDir(), "deps")

	p := testPipeline(Stage{
		Name: "build",
		Run:  fmt.Sprintf("mkdir -p %s && echo artifact > %s/lib.rlib", cacheDir, cacheDir),
	})
	p.Caches = []CacheMount{{Key: "target-cache", Path: cacheDir}}

	result := executeRun(t, p, store)
	if !result.Passed() {
		t.Fatalf("Expected passed run, got %s", result.Status)
	}

	// The populated directory must have been persisted.
	blob, err := store.Get(context.Background(), "target-cache")
	if err != nil {
		t.Fatalf("Expected cache entry after run: %v", err)
	}

	restored := t.TempDir()
	if err := cache.Unpack(blob, restored); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(restored, "lib.rlib"))
	if err != nil {
		t.Fatalf("Expected artifact in persisted cache: %v", err)
	}
	if string(content) != "artifact\n" {
		t.Errorf("Cache content wrong: %q", content)
	}
}

func TestExecuteCachePersistedAfterFailure(t *testing.T) {
	store := cache.NewMemoryStore()
	cacheDir := filepath.Join(t.TempDir(), "deps")

	p := testPipeline(Stage{
		Name: "build",
		Run:  fmt.Sprintf("mkdir -p %s && touch %s/partial && exit 1", cacheDir, cacheDir),
	})
	p.Caches = []CacheMount{{Key: "target-cache", Path: cacheDir}}

	result := executeRun(t, p, store)
	if result.Passed() {
		t.Fatal("Expected failed run")
	}
	if _, err := store.Get(context.Background(), "target-cache"); err != nil {
		t.Errorf("Expected cache persisted despite failure: %v", err)
	}
}

// brokenStore fails every operation, standing in for a flaky cache backend.
type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("backend unavailable")
}
func (brokenStore) Put(ctx context.Context, key string, blob []byte) error {
	return errors.New("backend unavailable")
}
func (brokenStore) Close() error { return nil }

func TestExecuteCacheFlakinessNeverFlipsVerdict(t *testing.T) {
	p := testPipeline(Stage{Name: "fmt", Run: "true"})
	p.Caches = []CacheMount{{Key: "k", Path: filepath.Join(t.TempDir(), "missing")}}

	result := executeRun(t, p, brokenStore{})
	if !result.Passed() {
		t.Errorf("Cache backend errors must not fail the run, got %s", result.Status)
	}
}

func TestExecuteWarmAndColdCacheSameVerdict(t *testing.T) {
	store := cache.NewMemoryStore()
	cacheDir := filepath.Join(t.TempDir(), "deps")

	p := testPipeline(Stage{
		Name: "build",
		Run:  fmt.Sprintf("mkdir -p %s && touch %s/stamp", cacheDir, cacheDir),
	})
	p.Caches = []CacheMount{{Key: "k", Path: cacheDir}}

	cold := executeRun(t, p, store)
	warm := executeRun(t, p, store)
	if cold.Status != warm.Status {
		t.Errorf("Cache warmth changed the verdict: cold=%s warm=%s", cold.Status, warm.Status)
	}
}

func TestExecuteAttachesJUnitReport(t *testing.T) {
	ws := t.TempDir()
	report := `<testsuite name="unit" tests="2" failures="1" errors="0" skipped="0">
		<testcase classname="ops" name="passes"/>
		<testcase classname="ops" name="flunks"><failure message="nope"/></testcase>
	</testsuite>`
	if err := os.WriteFile(filepath.Join(ws, "junit.xml"), []byte(report), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	p := testPipeline(Stage{Name: "test", Run: "true", Report: "junit.xml"})
	r := NewRunner(p, nil, ws, logger.NewSilentLogger())
	result := r.Execute(context.Background(), NewRunID(), contracts.TriggerEvent{})

	if result.Tests == nil {
		t.Fatal("Expected test summary on result")
	}
	if result.Tests.Tests != 2 || result.Tests.Failures != 1 {
		t.Errorf("Summary wrong: %+v", result.Tests)
	}
	if len(result.Tests.Failed) != 1 || result.Tests.Failed[0] != "ops/flunks" {
		t.Errorf("Failed cases wrong: %v", result.Tests.Failed)
	}
}

func TestExecuteEmitsOrderedEvents(t *testing.T) {
	p := testPipeline(
		Stage{Name: "fmt", Run: "true"},
		Stage{Name: "test", Run: "exit 1"},
	)
	r := NewRunner(p, nil, t.TempDir(), logger.NewSilentLogger())

	var types []string
	r.SetEventSink(func(ev contracts.RunEvent) {
		types = append(types, ev.Type)
	})
	r.Execute(context.Background(), NewRunID(), contracts.TriggerEvent{})

	want := []string{
		contracts.RunEventStarted,
		contracts.RunEventStageStarted, contracts.RunEventStageFinished,
		contracts.RunEventStageStarted, contracts.RunEventStageFinished,
		contracts.RunEventFinished,
	}
	if len(types) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(types), types)
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("Event %d = %s, want %s", i, types[i], w)
		}
	}
}

func TestExecuteStripsANSIFromOutput(t *testing.T) {
	result := executeRun(t, testPipeline(
		Stage{Name: "color", Run: `printf '\033[31mred error\033[0m\n'`},
	), nil)

	out := result.Stages[0].Output
	if out != "red error\n" && out != "red error" {
		t.Errorf("Expected ANSI stripped output, got %q", out)
	}
}
