package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/maauso/clearmedia-api/internal/credit"
)

// Audit compares a stored balance with the one implied by history:
// every credit granted by a recorded payment minus every credit charged by
// a settled job.
type Audit struct {
	UserID   string
	Balance  int
	Granted  int
	Charged  int
	Expected int
}

// Drift is how far the stored balance is off; positive means too high.
func (a Audit) Drift() int {
	return a.Balance - a.Expected
}

func (s *Store) audit(ctx context.Context, q queryer, userID string) (Audit, error) {
	a := Audit{UserID: userID}

	if err := q.GetContext(ctx, &a.Granted,
		`SELECT COALESCE(SUM(credits_granted), 0) FROM payment_transactions WHERE user_id = ?`, userID,
	); err != nil {
		return Audit{}, fmt.Errorf("sum granted credits: %w", err)
	}

	if err := q.GetContext(ctx, &a.Charged,
		`SELECT COALESCE(SUM(credits_charged), 0) FROM conversion_jobs WHERE owner_id = ? AND credits_settled = 1`, userID,
	); err != nil {
		return Audit{}, fmt.Errorf("sum charged credits: %w", err)
	}

	balance, err := s.balance(ctx, q, userID)
	if err != nil {
		return Audit{}, err
	}
	a.Balance = balance
	a.Expected = a.Granted - a.Charged
	if a.Expected < 0 {
		a.Expected = 0
	}
	return a, nil
}

// Audit reports the user's balance against their payment and job history.
func (s *Store) Audit(ctx context.Context, userID string) (Audit, error) {
	if userID == "" {
		return Audit{}, credit.ErrUserIDRequired
	}
	var a Audit
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		a, err = s.audit(ctx, tx, userID)
		return err
	})
	return a, err
}

// Repair resets a drifted balance to the expected one and returns the
// audit taken before the fix.
func (s *Store) Repair(ctx context.Context, userID string) (Audit, error) {
	if userID == "" {
		return Audit{}, credit.ErrUserIDRequired
	}
	var a Audit
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if a, err = s.audit(ctx, tx, userID); err != nil {
			return err
		}
		if a.Drift() == 0 {
			return nil
		}
		return s.setBalance(ctx, tx, userID, a.Expected)
	})
	if err != nil {
		return Audit{}, err
	}
	if a.Drift() != 0 {
		s.logger.Warn("credit balance repaired",
			slog.String("user_id", userID),
			slog.Int("balance", a.Balance),
			slog.Int("expected", a.Expected),
			slog.Int("drift", a.Drift()),
		)
	}
	return a, nil
}
