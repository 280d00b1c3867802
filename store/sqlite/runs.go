package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/warp/vesting-engine/generic"
)

// =============================================================================
// RELEASE RUNS - Auto-release sweep history
// =============================================================================

// ReleaseRun records one sweep of the auto-release scheduler.
type ReleaseRun struct {
	ID            string
	Status        string // running, completed, failed
	Beneficiaries int
	Released      int
	Failed        int
	Principal     generic.Amount
	Reward        generic.Amount
	Error         string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// SaveReleaseRun inserts or updates a run.
func (s *Store) SaveReleaseRun(ctx context.Context, r ReleaseRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO release_runs (id, status, beneficiaries, released, failed,
			principal, reward, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			beneficiaries = excluded.beneficiaries,
			released = excluded.released,
			failed = excluded.failed,
			principal = excluded.principal,
			reward = excluded.reward,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	var completedAt *string
	if r.CompletedAt != nil {
		s := r.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &s
	}
	principal, reward := r.Principal, r.Reward
	if principal.Value.IsZero() {
		principal = generic.ZeroAmount()
	}
	if reward.Value.IsZero() {
		reward = generic.ZeroAmount()
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Status, r.Beneficiaries, r.Released, r.Failed,
		principal.String(), reward.String(), nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339), completedAt,
	)
	return err
}

// GetReleaseRuns returns runs, newest first, optionally filtered by status.
func (s *Store) GetReleaseRuns(ctx context.Context, status string, limit int) ([]ReleaseRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, status, beneficiaries, released, failed, principal, reward,
			error, started_at, completed_at
		FROM release_runs
	`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ReleaseRun
	for rows.Next() {
		var (
			r                    ReleaseRun
			principal, reward    string
			errText, completedAt sql.NullString
			startedAt            string
		)
		if err := rows.Scan(
			&r.ID, &r.Status, &r.Beneficiaries, &r.Released, &r.Failed,
			&principal, &reward, &errText, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		if r.Principal, err = generic.ParseAmount(principal); err != nil {
			return nil, err
		}
		if r.Reward, err = generic.ParseAmount(reward); err != nil {
			return nil, err
		}
		r.Error = errText.String
		if r.StartedAt, err = parseTime("started_at", startedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := parseTime("completed_at", completedAt.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}
