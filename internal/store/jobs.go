package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/maauso/clearmedia-api/internal/job"
)

const jobColumns = `id, external_task_id, owner_id, kind, state, progress, input_ref, output_ref,
	billing_mode, metric, credits_reserved, credits_settled, credits_charged, shortfall,
	poll_count, error, created_at, updated_at, submitted_at, completed_at`

// inFlight lists the states a job can still leave.
const inFlight = `('submitted', 'processing')`

// jobRow is the conversion_jobs row layout.
type jobRow struct {
	ID              string          `db:"id"`
	ExternalTaskID  string          `db:"external_task_id"`
	OwnerID         string          `db:"owner_id"`
	Kind            job.Kind        `db:"kind"`
	State           job.State       `db:"state"`
	Progress        int             `db:"progress"`
	InputRef        string          `db:"input_ref"`
	OutputRef       string          `db:"output_ref"`
	BillingMode     job.BillingMode `db:"billing_mode"`
	Metric          float64         `db:"metric"`
	CreditsReserved int             `db:"credits_reserved"`
	CreditsSettled  bool            `db:"credits_settled"`
	CreditsCharged  int             `db:"credits_charged"`
	Shortfall       int             `db:"shortfall"`
	PollCount       int             `db:"poll_count"`
	Error           string          `db:"error"`
	CreatedAt       dbTime          `db:"created_at"`
	UpdatedAt       dbTime          `db:"updated_at"`
	SubmittedAt     dbTime          `db:"submitted_at"`
	CompletedAt     dbTime          `db:"completed_at"`
}

func (r jobRow) toJob() *job.Job {
	return &job.Job{
		ID:              r.ID,
		ExternalTaskID:  r.ExternalTaskID,
		OwnerID:         r.OwnerID,
		Kind:            r.Kind,
		State:           r.State,
		Progress:        r.Progress,
		InputRef:        r.InputRef,
		OutputRef:       r.OutputRef,
		BillingMode:     r.BillingMode,
		Metric:          r.Metric,
		CreditsReserved: r.CreditsReserved,
		CreditsSettled:  r.CreditsSettled,
		CreditsCharged:  r.CreditsCharged,
		Shortfall:       r.Shortfall,
		PollCount:       r.PollCount,
		Error:           r.Error,
		CreatedAt:       r.CreatedAt.Time,
		UpdatedAt:       r.UpdatedAt.Time,
		SubmittedAt:     r.SubmittedAt.Time,
		CompletedAt:     r.CompletedAt.Time,
	}
}

func (s *Store) jobState(ctx context.Context, q queryer, id string) (job.State, error) {
	var state job.State
	err := q.GetContext(ctx, &state, `SELECT state FROM conversion_jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", job.ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load job state: %w", err)
	}
	return state, nil
}

// Create inserts a new job.
func (s *Store) Create(ctx context.Context, j *job.Job) error {
	c := j.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversion_jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ExternalTaskID, c.OwnerID, string(c.Kind), string(c.State), c.Progress, c.InputRef, c.OutputRef,
		string(c.BillingMode), c.Metric, c.CreditsReserved, c.CreditsSettled, c.CreditsCharged, c.Shortfall,
		c.PollCount, c.Error, formatTime(c.CreatedAt), formatTime(c.UpdatedAt), nullTime(c.SubmittedAt), nullTime(c.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FindByID loads a job.
func (s *Store) FindByID(ctx context.Context, id string) (*job.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM conversion_jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return row.toJob(), nil
}

// ListByOwner returns the owner's jobs, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM conversion_jobs WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, r.toJob())
	}
	return jobs, nil
}

// MarkSubmitted stores the processor handle of a pending job.
func (s *Store) MarkSubmitted(ctx context.Context, id, externalTaskID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := formatTime(s.now())
		res, err := tx.ExecContext(ctx,
			`UPDATE conversion_jobs SET state = 'submitted', external_task_id = ?, submitted_at = ?, updated_at = ?
			 WHERE id = ? AND state = 'pending'`,
			externalTaskID, now, now, id,
		)
		if err != nil {
			return fmt.Errorf("mark submitted: %w", err)
		}
		n, err := affected(res)
		if err != nil || n == 1 {
			return err
		}
		if _, err := s.jobState(ctx, tx, id); err != nil {
			return err
		}
		return job.ErrInvalidTransition
	})
}

// RecordPoll increments the poll counter of a non-terminal job.
func (s *Store) RecordPoll(ctx context.Context, id string) (int, error) {
	var count int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE conversion_jobs SET poll_count = poll_count + 1
			 WHERE id = ? AND state NOT IN ('completed', 'failed')`,
			id,
		)
		if err != nil {
			return fmt.Errorf("record poll: %w", err)
		}
		err = tx.QueryRowContext(ctx, `SELECT poll_count FROM conversion_jobs WHERE id = ?`, id).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			return job.ErrJobNotFound
		}
		return err
	})
	return count, err
}

// Advance moves an in-flight job to processing and raises its progress.
func (s *Store) Advance(ctx context.Context, id string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversion_jobs
			 SET state = 'processing',
			     progress = CASE WHEN progress < ? THEN ? ELSE progress END,
			     updated_at = ?
			 WHERE id = ? AND state IN `+inFlight,
			progress, progress, formatTime(s.now()), id,
		)
		if err != nil {
			return fmt.Errorf("advance job: %w", err)
		}
		n, err := affected(res)
		if err != nil || n == 1 {
			return err
		}
		state, err := s.jobState(ctx, tx, id)
		if err != nil {
			return err
		}
		if state.IsTerminal() {
			return nil
		}
		return job.ErrInvalidTransition
	})
}

// Fail moves a non-terminal job to failed.
func (s *Store) Fail(ctx context.Context, id, reason string) (bool, error) {
	var failed bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := formatTime(s.now())
		res, err := tx.ExecContext(ctx,
			`UPDATE conversion_jobs SET state = 'failed', error = ?, completed_at = ?, updated_at = ?
			 WHERE id = ? AND state NOT IN ('completed', 'failed')`,
			reason, now, now, id,
		)
		if err != nil {
			return fmt.Errorf("fail job: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 1 {
			failed = true
			return nil
		}
		_, err = s.jobState(ctx, tx, id)
		return err
	})
	return failed, err
}

// Complete moves an in-flight job to completed and settles its charge in
// the same transaction. The state guard on the first UPDATE lets exactly
// one caller through.
func (s *Store) Complete(ctx context.Context, id, outputRef string, charge int) (job.Settlement, error) {
	var out job.Settlement
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		now := formatTime(s.now())
		res, err := tx.ExecContext(ctx,
			`UPDATE conversion_jobs SET state = 'completed', progress = 100, output_ref = ?, completed_at = ?, updated_at = ?
			 WHERE id = ? AND state IN `+inFlight,
			outputRef, now, now, id,
		)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			state, err := s.jobState(ctx, tx, id)
			if err != nil {
				return err
			}
			if state.IsTerminal() {
				return nil
			}
			return job.ErrInvalidTransition
		}

		var ownerID string
		if err := tx.QueryRowContext(ctx, `SELECT owner_id FROM conversion_jobs WHERE id = ?`, id).Scan(&ownerID); err != nil {
			return fmt.Errorf("load job owner: %w", err)
		}

		settlement := job.Settlement{Completed: true}
		if charge > 0 {
			if err := s.ensureAccount(ctx, tx, ownerID); err != nil {
				return err
			}
			debited, err := s.debit(ctx, tx, ownerID, charge)
			if err != nil {
				return err
			}
			if debited {
				settlement.Charged = charge
			} else {
				settlement.Shortfall = charge
			}
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE conversion_jobs SET credits_settled = 1, credits_charged = ?, shortfall = ?
			 WHERE id = ? AND credits_settled = 0`,
			settlement.Charged, settlement.Shortfall, id,
		)
		if err != nil {
			return fmt.Errorf("settle job: %w", err)
		}
		if n, err = affected(res); err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("settle job %s: already settled", id)
		}

		out = settlement
		return nil
	})
	return out, err
}

var _ job.Repository = (*Store)(nil)
