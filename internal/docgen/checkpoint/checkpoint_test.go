package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleJob(repoID string) model.GenerationJob {
	return model.GenerationJob{
		RepoID:      repoID,
		RepoURL:     "https://github.com/acme/tool",
		Type:        model.SourceGitHubRepo,
		Status:      model.StatusIndexing,
		Progress:    40,
		CurrentStep: "building index",
		TotalSteps:  6,
		StartedAt:   time.Now().Add(-time.Hour).Truncate(time.Second),
		Artifacts: model.Artifacts{
			RepoFiles: []model.RepoFile{{Path: "main.go", Size: 100}},
		},
	}
}

func TestSaveAndGet_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := sampleJob("acme_tool_1700000000")

	require.NoError(t, store.Save(ctx, job))

	got, err := store.Get(ctx, job.RepoID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, job.Progress, got.Progress)
	assert.Equal(t, job.CurrentStep, got.CurrentStep)
	assert.Equal(t, job.StartedAt.Unix(), got.StartedAt.Unix())
	require.Len(t, got.Artifacts.RepoFiles, 1)
	assert.Equal(t, "main.go", got.Artifacts.RepoFiles[0].Path)
}

func TestGet_MissingReturnsNilNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_UpsertsExistingRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := sampleJob("acme_tool_1700000001")
	require.NoError(t, store.Save(ctx, job))

	job.Status = model.StatusGenerating
	job.Progress = 70
	require.NoError(t, store.Save(ctx, job))

	got, err := store.Get(ctx, job.RepoID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusGenerating, got.Status)
	assert.Equal(t, 70, got.Progress)
}

func TestListIncomplete_ExcludesTerminalStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := sampleJob("acme_tool_active")
	active.Status = model.StatusGenerating
	require.NoError(t, store.Save(ctx, active))

	done := sampleJob("acme_tool_done")
	done.Status = model.StatusCompleted
	require.NoError(t, store.Save(ctx, done))

	jobs, err := store.ListIncomplete(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "acme_tool_active", jobs[0].RepoID)
}

func TestMarkCompleted_DeletesCheckpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := sampleJob("acme_tool_complete")
	require.NoError(t, store.Save(ctx, job))

	require.NoError(t, store.MarkCompleted(ctx, job.RepoID))

	got, err := store.Get(ctx, job.RepoID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMarkFailed_SetsStatusAndError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := sampleJob("acme_tool_failed")
	require.NoError(t, store.Save(ctx, job))

	require.NoError(t, store.MarkFailed(ctx, job.RepoID, "boom"))

	got, err := store.Get(ctx, job.RepoID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}
