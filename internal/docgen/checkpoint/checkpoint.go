// Package checkpoint persists generation job state to a local SQLite
// database so a crashed or restarted orchestrator can resume in-flight
// documentation jobs instead of restarting them from scratch.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
)

// Store persists GenerationJob checkpoints keyed by repo_id. Saves are
// best-effort: callers should treat a save failure as a logged warning,
// never as a reason to fail the owning job.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if absent) the checkpoint database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "checkpoint", "open database", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.ErrInternal, "checkpoint", "init schema", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS generation_checkpoints (
		repo_id TEXT PRIMARY KEY,
		repo_url TEXT,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER NOT NULL,
		current_step TEXT,
		completed_steps INTEGER NOT NULL,
		total_steps INTEGER NOT NULL,
		error TEXT,
		artifacts TEXT,
		started_at INTEGER NOT NULL,
		last_updated INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON generation_checkpoints(status);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_last_updated ON generation_checkpoints(last_updated);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_status_last_updated ON generation_checkpoints(status, last_updated);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts job as a checkpoint. Never returns a fatal taxonomy error
// to callers that choose to ignore it: failures are always ErrPartialFailure.
func (s *Store) Save(ctx context.Context, job model.GenerationJob) error {
	artifactsJSON, err := json.Marshal(job.Artifacts)
	if err != nil {
		return errs.Wrap(errs.ErrPartialFailure, "checkpoint", "marshal artifacts", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generation_checkpoints
			(repo_id, repo_url, type, status, progress, current_step, completed_steps,
			 total_steps, error, artifacts, started_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			repo_url = excluded.repo_url,
			type = excluded.type,
			status = excluded.status,
			progress = excluded.progress,
			current_step = excluded.current_step,
			completed_steps = excluded.completed_steps,
			total_steps = excluded.total_steps,
			error = excluded.error,
			artifacts = excluded.artifacts,
			last_updated = excluded.last_updated
	`,
		job.RepoID, job.RepoURL, string(job.Type), string(job.Status), job.Progress,
		job.CurrentStep, job.CompletedSteps, job.TotalSteps, job.Error, string(artifactsJSON),
		job.StartedAt.Unix(), now,
	)
	if err != nil {
		return errs.Wrap(errs.ErrPartialFailure, "checkpoint", fmt.Sprintf("save checkpoint for %s", job.RepoID), err)
	}
	return nil
}

// Get loads the checkpoint for repoID, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, repoID string) (*model.GenerationJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT repo_id, repo_url, type, status, progress, current_step, completed_steps,
		       total_steps, error, artifacts, started_at, last_updated
		FROM generation_checkpoints WHERE repo_id = ?
	`, repoID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "checkpoint", "get checkpoint", err)
	}
	return job, nil
}

// ListIncomplete returns non-terminal checkpoints updated within maxAge,
// most recently updated first, capped at limit.
func (s *Store) ListIncomplete(ctx context.Context, maxAge time.Duration, limit int) ([]model.GenerationJob, error) {
	statuses := model.NonTerminalStatuses()
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	cutoff := time.Now().Add(-maxAge).Unix()
	args = append(args, cutoff, limit)

	query := fmt.Sprintf(`
		SELECT repo_id, repo_url, type, status, progress, current_step, completed_steps,
		       total_steps, error, artifacts, started_at, last_updated
		FROM generation_checkpoints
		WHERE status IN (%s) AND last_updated >= ?
		ORDER BY last_updated DESC
		LIMIT ?
	`, joinPlaceholders(placeholders))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInternal, "checkpoint", "list incomplete", err)
	}
	defer rows.Close()

	var jobs []model.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkCompleted sets status to completed, progress 100, then deletes the
// checkpoint — a completed job no longer needs resume state.
func (s *Store) MarkCompleted(ctx context.Context, repoID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE generation_checkpoints SET status = ?, progress = 100, last_updated = ?
		WHERE repo_id = ?
	`, string(model.StatusCompleted), time.Now().Unix(), repoID)
	if err != nil {
		return errs.Wrap(errs.ErrPartialFailure, "checkpoint", "mark completed", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM generation_checkpoints WHERE repo_id = ?`, repoID)
	if err != nil {
		return errs.Wrap(errs.ErrPartialFailure, "checkpoint", "delete completed checkpoint", err)
	}
	return nil
}

// MarkFailed sets status to failed with the given error message.
func (s *Store) MarkFailed(ctx context.Context, repoID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE generation_checkpoints SET status = ?, error = ?, last_updated = ?
		WHERE repo_id = ?
	`, string(model.StatusFailed), errMsg, time.Now().Unix(), repoID)
	if err != nil {
		return errs.Wrap(errs.ErrPartialFailure, "checkpoint", "mark failed", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.GenerationJob, error) {
	var (
		job           model.GenerationJob
		repoURL       sql.NullString
		currentStep   sql.NullString
		errMsg        sql.NullString
		artifactsJSON sql.NullString
		startedAt     int64
		lastUpdated   int64
		jobType       string
		status        string
	)

	if err := row.Scan(
		&job.RepoID, &repoURL, &jobType, &status, &job.Progress, &currentStep,
		&job.CompletedSteps, &job.TotalSteps, &errMsg, &artifactsJSON, &startedAt, &lastUpdated,
	); err != nil {
		return nil, err
	}

	job.RepoURL = repoURL.String
	job.Type = model.SourceType(jobType)
	job.Status = model.JobStatus(status)
	job.CurrentStep = currentStep.String
	job.Error = errMsg.String
	job.StartedAt = time.Unix(startedAt, 0).UTC()
	job.LastUpdated = time.Unix(lastUpdated, 0).UTC()

	if artifactsJSON.Valid && artifactsJSON.String != "" {
		if err := json.Unmarshal([]byte(artifactsJSON.String), &job.Artifacts); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
