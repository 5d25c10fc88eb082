// Package tracking records pipeline stage runs keyed by entry point,
// parameter set and revision, so identical invocations can be reused
// instead of recomputed. Stages are idempotent and parameter-addressed,
// which makes this caching layer safe.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

const indexFile = "runs.json"

// Run is one recorded stage execution.
type Run struct {
	ID          string             `json:"id"`
	Stage       string             `json:"stage"`
	Params      map[string]string  `json:"params"`
	Revision    string             `json:"revision"`
	Status      Status             `json:"status"`
	ArtifactDir string             `json:"artifact_dir"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at,omitempty"`
}

// LogMetric records a named metric value on the run.
func (r *Run) LogMetric(name string, value float64) {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Metrics[name] = value
}

// Store is a file-backed run registry rooted at a directory. The index
// lives in runs.json; each run owns an artifact subdirectory named by its
// ID.
type Store struct {
	mu     sync.Mutex
	dir    string
	runs   []*Run
	logger *slog.Logger
}

// Open loads (or initializes) a store at the given directory.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}
	s := &Store{dir: dir, logger: logger}
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}
	if err := json.Unmarshal(data, &s.runs); err != nil {
		return nil, fmt.Errorf("open tracking store: corrupt index: %w", err)
	}
	return s, nil
}

// Find returns the most recent finished run with exactly matching stage,
// parameters and revision, or nil.
func (s *Store) Find(stage string, params map[string]string, revision string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := s.runs[i]
		if run.Stage != stage || run.Revision != revision || run.Status != StatusFinished {
			continue
		}
		if !matchParams(run.Params, params) {
			continue
		}
		return run
	}
	return nil
}

// GetOrRun returns an existing finished run for (stage, params, revision),
// or executes fn against a fresh run and records the outcome. A failed run
// is recorded but never reused.
func (s *Store) GetOrRun(ctx context.Context, stage string, params map[string]string, revision string, fn func(ctx context.Context, run *Run) error) (*Run, error) {
	if existing := s.Find(stage, params, revision); existing != nil {
		s.logger.InfoContext(ctx, "reusing existing run",
			slog.String("stage", stage),
			slog.String("run_id", existing.ID),
		)
		return existing, nil
	}

	run := &Run{
		ID:        uuid.NewString(),
		Stage:     stage,
		Params:    copyParams(params),
		Revision:  revision,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	run.ArtifactDir = filepath.Join(s.dir, run.ID)
	if err := os.MkdirAll(run.ArtifactDir, 0755); err != nil {
		return nil, fmt.Errorf("run %s: %w", stage, err)
	}
	s.append(run)

	s.logger.InfoContext(ctx, "starting run",
		slog.String("stage", stage),
		slog.String("run_id", run.ID),
	)
	err := fn(ctx, run)
	run.EndedAt = time.Now().UTC()
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		if saveErr := s.save(); saveErr != nil {
			s.logger.WarnContext(ctx, "failed to persist run index", slog.String("error", saveErr.Error()))
		}
		return nil, fmt.Errorf("run %s: %w", stage, err)
	}
	run.Status = StatusFinished
	if err := s.save(); err != nil {
		return nil, fmt.Errorf("run %s: persist index: %w", stage, err)
	}
	return run, nil
}

// Runs returns a snapshot of all recorded runs in creation order.
func (s *Store) Runs() []*Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Run, len(s.runs))
	copy(out, s.runs)
	return out
}

func (s *Store) append(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
}

func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(s.runs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, indexFile), data, 0644)
}

func matchParams(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range b {
		if a[k] != v {
			return false
		}
	}
	return true
}

func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
