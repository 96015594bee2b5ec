// Package pipeline defines the verification pipeline model and executes
// runs: ordered stages with fail-fast semantics, bracketed by dependency
// cache restore and save.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gantry-runner/src/trigger"
)

// Pipeline is a declarative verification pipeline definition.
type Pipeline struct {
	// Name identifies the pipeline in logs and reports.
	Name string `yaml:"name"`
	// On declares which events start the pipeline.
	On TriggerSpec `yaml:"on"`
	// Env is applied to every stage command.
	Env map[string]string `yaml:"env,omitempty"`
	// Caches are restored before the first stage and persisted after the
	// last, whatever the outcome.
	Caches []CacheMount `yaml:"caches,omitempty"`
	// Stages run strictly in declaration order.
	Stages []Stage `yaml:"stages"`
}

// TriggerSpec declares the trigger surface of a pipeline.
type TriggerSpec struct {
	Push        BranchSpec `yaml:"push,omitempty"`
	PullRequest BranchSpec `yaml:"pull_request,omitempty"`
	// Paths: at least one changed file must match one of these globs.
	// Empty means any change is relevant.
	Paths []string `yaml:"paths,omitempty"`
}

// BranchSpec lists the branches an event kind is accepted for.
type BranchSpec struct {
	Branches []string `yaml:"branches"`
}

// CacheMount binds a cache key to the directory it materializes at.
type CacheMount struct {
	Key  string `yaml:"key"`
	Path string `yaml:"path"`
}

// Stage is one discrete verification step.
type Stage struct {
	Name string `yaml:"name"`
	// Run is the shell command, executed via `sh -c`.
	Run string `yaml:"run"`
	// Env overrides pipeline-level env for this stage only.
	Env map[string]string `yaml:"env,omitempty"`
	// ContinueOnFailure lets later stages run even when this one fails.
	// The run is still reported failed.
	ContinueOnFailure bool `yaml:"continue_on_failure,omitempty"`
	// Report is an optional workspace-relative JUnit XML file to summarize
	// after the stage runs.
	Report string `yaml:"report,omitempty"`
}

// Parse parses a YAML pipeline definition.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses a pipeline definition file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault loads the pipeline at path, falling back to the built-in
// default when the file does not exist.
func LoadOrDefault(path string) (*Pipeline, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks structural invariants: at least one stage, no duplicate
// stage names or cache keys, and complete cache mounts.
func (p *Pipeline) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %q declares no stages", p.Name)
	}

	stageNames := make(map[string]struct{})
	for _, s := range p.Stages {
		if s.Name == "" {
			return fmt.Errorf("pipeline %q has a stage without a name", p.Name)
		}
		if s.Run == "" {
			return fmt.Errorf("stage %q has no command", s.Name)
		}
		if _, dup := stageNames[s.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		stageNames[s.Name] = struct{}{}
	}

	cacheKeys := make(map[string]struct{})
	for _, c := range p.Caches {
		if c.Key == "" || c.Path == "" {
			return fmt.Errorf("cache mount needs both key and path, got key=%q path=%q", c.Key, c.Path)
		}
		if _, dup := cacheKeys[c.Key]; dup {
			return fmt.Errorf("duplicate cache key %q", c.Key)
		}
		cacheKeys[c.Key] = struct{}{}
	}

	return nil
}

// Rules compiles the trigger surface into evaluable rules.
func (p *Pipeline) Rules() (trigger.Rules, error) {
	filter, err := trigger.NewPathFilter(p.On.Paths)
	if err != nil {
		return trigger.Rules{}, err
	}
	return trigger.Rules{
		PushBranches:        p.On.Push.Branches,
		PullRequestBranches: p.On.PullRequest.Branches,
		Filter:              filter,
	}, nil
}

// Default is the built-in verification pipeline for a Rust crate: format
// check, lint, then tests, triggered by pushes to master and pull requests
// targeting master that touch the source tree, manifest, or workflow file.
func Default() *Pipeline {
	return &Pipeline{
		Name: "test-rust-project",
		On: TriggerSpec{
			Push:        BranchSpec{Branches: []string{"master"}},
			PullRequest: BranchSpec{Branches: []string{"master"}},
			Paths: []string{
				"src/**",
				"Cargo.toml",
				".github/workflows/test.yaml",
			},
		},
		Caches: []CacheMount{
			{Key: "cargo-cache-test-rs", Path: "/github/home/.cargo"},
			{Key: "ubuntu-x86-64-target-cache-stable", Path: "/github/home/target"},
		},
		Stages: []Stage{
			{
				Name: "fmt",
				Run:  "cargo fmt --all -- --check",
			},
			{
				Name: "clippy",
				Run:  "cargo clippy --all-features && cargo clippy -- -D warnings",
				Env:  map[string]string{"RUSTFLAGS": "-C debuginfo=0"},
			},
			{
				Name: "test",
				Run:  "cargo test --all-features -- --test-threads=1",
			},
		},
	}
}
