package tracking

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrRunExecutesOnceThenReuses(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	params := map[string]string{"start_week": "31", "end_week": "40"}
	calls := 0
	fn := func(ctx context.Context, run *Run) error {
		calls++
		run.LogMetric("rows", 100)
		return nil
	}

	first, err := store.GetOrRun(context.Background(), "load", params, "v1", fn)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, first.Status)
	assert.Equal(t, 1, calls)
	assert.DirExists(t, first.ArtifactDir)

	second, err := store.GetOrRun(context.Background(), "load", params, "v1", fn)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "an identical invocation must be served from the recorded run")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 100.0, second.Metrics["rows"])
}

func TestGetOrRunKeyMismatchesForceFreshRuns(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	calls := 0
	fn := func(ctx context.Context, run *Run) error {
		calls++
		return nil
	}
	base := map[string]string{"n_fold": "10"}

	_, err = store.GetOrRun(context.Background(), "validate", base, "v1", fn)
	require.NoError(t, err)

	tests := []struct {
		name     string
		stage    string
		params   map[string]string
		revision string
	}{
		{"different stage", "train", base, "v1"},
		{"different param value", "validate", map[string]string{"n_fold": "5"}, "v1"},
		{"extra param", "validate", map[string]string{"n_fold": "10", "degree": "2"}, "v1"},
		{"different revision", "validate", base, "v2"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.GetOrRun(context.Background(), tt.stage, tt.params, tt.revision, fn)
			require.NoError(t, err)
			assert.Equal(t, i+2, calls)
		})
	}
}

func TestGetOrRunFailureIsRecordedNotReused(t *testing.T) {
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	_, err = store.GetOrRun(context.Background(), "train", nil, "v1", func(ctx context.Context, run *Run) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Error)

	// The failed run must not satisfy the next lookup.
	_, err = store.GetOrRun(context.Background(), "train", nil, "v1", func(ctx context.Context, run *Run) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	require.NoError(t, err)

	params := map[string]string{"next_week": "41"}
	run, err := store.GetOrRun(context.Background(), "predict", params, "v1", func(ctx context.Context, r *Run) error {
		return nil
	})
	require.NoError(t, err)

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	found := reopened.Find("predict", params, "v1")
	require.NotNil(t, found)
	assert.Equal(t, run.ID, found.ID)
}

func TestOpenRejectsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/runs.json", []byte("{not json"), 0644))
	_, err := Open(dir, nil)
	assert.Error(t, err)
}
