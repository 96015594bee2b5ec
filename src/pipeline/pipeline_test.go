package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"gantry-runner/src/contracts"
)

func TestParsePipelineYAML(t *testing.T) {
	data := []byte(`
name: verify
on:
  push:
    branches: [master]
  pull_request:
    branches: [master]
  paths:
    - "src/**"
    - Cargo.toml
env:
  CI: "true"
caches:
  - key: cargo-cache-test-rs
    path: /github/home/.cargo
stages:
  - name: fmt
    run: cargo fmt --all -- --check
  - name: test
    run: cargo test
    report: target/junit.xml
    continue_on_failure: true
`)

	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if p.Name != "verify" {
		t.Errorf("Expected name verify, got %q", p.Name)
	}
	if len(p.Stages) != 2 {
		t.Fatalf("Expected 2 stages, got %d", len(p.Stages))
	}
	if p.Stages[0].Name != "fmt" || p.Stages[0].ContinueOnFailure {
		t.Errorf("Stage 0 parsed wrong: %+v", p.Stages[0])
	}
	if !p.Stages[1].ContinueOnFailure {
		t.Error("Expected continue_on_failure on test stage")
	}
	if p.Stages[1].Report != "target/junit.xml" {
		t.Errorf("Expected report path, got %q", p.Stages[1].Report)
	}
	if len(p.Caches) != 1 || p.Caches[0].Key != "cargo-cache-test-rs" {
		t.Errorf("Caches parsed wrong: %+v", p.Caches)
	}
	if p.Env["CI"] != "true" {
		t.Errorf("Env parsed wrong: %+v", p.Env)
	}
}

func TestValidateRejectsBrokenPipelines(t *testing.T) {
	cases := []struct {
		name string
		p    Pipeline
	}{
		{"no stages", Pipeline{Name: "x"}},
		{"unnamed stage", Pipeline{Stages: []Stage{{Run: "true"}}}},
		{"stage without command", Pipeline{Stages: []Stage{{Name: "fmt"}}}},
		{"duplicate stage", Pipeline{Stages: []Stage{{Name: "fmt", Run: "true"}, {Name: "fmt", Run: "true"}}}},
		{"incomplete cache mount", Pipeline{
			Stages: []Stage{{Name: "fmt", Run: "true"}},
			Caches: []CacheMount{{Key: "k"}},
		}},
		{"duplicate cache key", Pipeline{
			Stages: []Stage{{Name: "fmt", Run: "true"}},
			Caches: []CacheMount{{Key: "k", Path: "/a"}, {Key: "k", Path: "/b"}},
		}},
	}

	for _, c := range cases {
		if err := c.p.Validate(); err == nil {
			t.Errorf("Expected %s to fail validation", c.name)
		}
	}
}

func TestDefaultPipelineSurface(t *testing.T) {
	p := Default()
	if err := p.Validate(); err != nil {
		t.Fatalf("Default pipeline invalid: %v", err)
	}

	if len(p.Stages) != 3 {
		t.Fatalf("Expected 3 stages, got %d", len(p.Stages))
	}
	wantStages := []struct {
		name string
		run  string
	}{
		{"fmt", "cargo fmt --all -- --check"},
		{"clippy", "cargo clippy --all-features && cargo clippy -- -D warnings"},
		{"test", "cargo test --all-features -- --test-threads=1"},
	}
	for i, w := range wantStages {
		if p.Stages[i].Name != w.name || p.Stages[i].Run != w.run {
			t.Errorf("Stage %d = %q %q, want %q %q", i, p.Stages[i].Name, p.Stages[i].Run, w.name, w.run)
		}
		if p.Stages[i].ContinueOnFailure {
			t.Errorf("Stage %q must be required", w.name)
		}
	}

	if p.Stages[1].Env["RUSTFLAGS"] != "-C debuginfo=0" {
		t.Errorf("clippy stage env wrong: %+v", p.Stages[1].Env)
	}

	if len(p.Caches) != 2 {
		t.Fatalf("Expected 2 cache mounts, got %d", len(p.Caches))
	}
	if p.Caches[0].Key != "cargo-cache-test-rs" || p.Caches[0].Path != "/github/home/.cargo" {
		t.Errorf("Cache 0 wrong: %+v", p.Caches[0])
	}
	if p.Caches[1].Key != "ubuntu-x86-64-target-cache-stable" || p.Caches[1].Path != "/github/home/target" {
		t.Errorf("Cache 1 wrong: %+v", p.Caches[1])
	}
}

func TestDefaultPipelineRules(t *testing.T) {
	rules, err := Default().Rules()
	if err != nil {
		t.Fatalf("Rules failed: %v", err)
	}

	push := contracts.TriggerEvent{
		Kind:         contracts.EventPush,
		Branch:       "master",
		ChangedPaths: []string{"src/lib.rs"},
	}
	if !rules.ShouldRun(push) {
		t.Error("Expected push to master touching src/lib.rs to run")
	}

	docsOnly := contracts.TriggerEvent{
		Kind:         contracts.EventPush,
		Branch:       "master",
		ChangedPaths: []string{"README.md"},
	}
	if rules.ShouldRun(docsOnly) {
		t.Error("Expected README-only push not to run")
	}

	pr := contracts.TriggerEvent{
		Kind:         contracts.EventPullRequest,
		TargetBranch: "master",
		ChangedPaths: []string{"Cargo.toml"},
	}
	if !rules.ShouldRun(pr) {
		t.Error("Expected PR targeting master touching Cargo.toml to run")
	}
}

func TestLoadOrDefault(t *testing.T) {
	p, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if p.Name != Default().Name {
		t.Errorf("Expected default pipeline for missing file, got %q", p.Name)
	}

	path := filepath.Join(t.TempDir(), "gantry.yaml")
	content := "name: custom\nstages:\n  - name: fmt\n    run: \"true\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	p, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if p.Name != "custom" {
		t.Errorf("Expected custom pipeline, got %q", p.Name)
	}
}

func TestNewRunIDShape(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == b {
		t.Errorf("Expected unique run IDs, got %q twice", a)
	}
	if len(a) < len("run-20060102T150405-") {
		t.Errorf("Run ID %q too short", a)
	}
	if a[:4] != "run-" {
		t.Errorf("Run ID %q missing prefix", a)
	}
}
