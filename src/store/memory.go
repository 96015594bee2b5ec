package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gantry-runner/src/contracts"
)

// MemoryStore is an in-memory Store for single-process runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*runRecord
	created map[string]int64 // runID -> insertion order for listing
	seq     int64
}

type runRecord struct {
	status    string
	event     contracts.TriggerEvent
	result    *contracts.RunResult
	startedAt string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*runRecord),
		created: make(map[string]int64),
	}
}

// CreateRun records a newly accepted run in status pending.
func (s *MemoryStore) CreateRun(ctx context.Context, runID string, event contracts.TriggerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; exists {
		return fmt.Errorf("run already exists: %s", runID)
	}

	s.seq++
	s.runs[runID] = &runRecord{
		status:    "pending",
		event:     event,
		startedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.created[runID] = s.seq
	return nil
}

// MarkRunning moves a run to status running.
func (s *MemoryStore) MarkRunning(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.runs[runID]
	if !exists {
		return ErrNotFound
	}
	rec.status = "running"
	return nil
}

// SaveResult stores the final result and moves the run to its terminal
// status. Runs not created beforehand are accepted too, so a standalone
// runner can persist results without the webhook path.
func (s *MemoryStore) SaveResult(ctx context.Context, result *contracts.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.runs[result.RunID]
	if !exists {
		s.seq++
		rec = &runRecord{event: result.Event}
		s.runs[result.RunID] = rec
		s.created[result.RunID] = s.seq
	}
	rec.status = string(result.Status)
	rec.result = result
	return nil
}

// GetRun retrieves the full result for a finished run.
func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*contracts.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.runs[runID]
	if !exists || rec.result == nil {
		return nil, ErrNotFound
	}

	copied := *rec.result
	copied.Stages = append([]contracts.StageResult(nil), rec.result.Stages...)
	return &copied, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]contracts.RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.created[ids[i]] > s.created[ids[j]]
	})

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	statuses := make([]contracts.RunStatus, 0, len(ids))
	for _, id := range ids {
		rec := s.runs[id]
		status := contracts.RunStatus{
			RunID:     id,
			Repo:      rec.event.Repo,
			Ref:       rec.event.Ref(),
			Commit:    rec.event.Commit,
			Status:    rec.status,
			StartedAt: rec.startedAt,
		}
		if rec.result != nil {
			status.StageCount = len(rec.result.Stages)
			status.StartedAt = rec.result.StartedAt
			status.FinishedAt = rec.result.FinishedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
