package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/maauso/clearmedia-api/internal/credit"
)

func (s *Store) ensureAccount(ctx context.Context, q queryer, userID string) error {
	now := formatTime(s.now())
	_, err := q.ExecContext(ctx,
		s.insertIgnore()+` INTO user_credit_accounts (user_id, balance, free_trial_consumed, created_at, updated_at)
		 VALUES (?, 0, 0, ?, ?)`,
		userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

func (s *Store) loadAccount(ctx context.Context, q queryer, userID string) (credit.Account, error) {
	var (
		acct      credit.Account
		updatedAt dbTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT user_id, balance, free_trial_consumed, updated_at FROM user_credit_accounts WHERE user_id = ?`,
		userID,
	).Scan(&acct.UserID, &acct.Balance, &acct.FreeTrialConsumed, &updatedAt)
	if err != nil {
		return credit.Account{}, fmt.Errorf("load account: %w", err)
	}
	acct.UpdatedAt = updatedAt.Time
	return acct, nil
}

func (s *Store) balance(ctx context.Context, q queryer, userID string) (int, error) {
	var balance int
	err := q.GetContext(ctx, &balance, `SELECT balance FROM user_credit_accounts WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return balance, nil
}

// debit is the conditional decrement shared by TryDebit and job settlement.
func (s *Store) debit(ctx context.Context, q queryer, userID string, amount int) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE user_credit_accounts SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?`,
		amount, formatTime(s.now()), userID, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) credit(ctx context.Context, q queryer, userID string, amount int) (int, error) {
	if err := s.ensureAccount(ctx, q, userID); err != nil {
		return 0, err
	}
	if amount > 0 {
		_, err := q.ExecContext(ctx,
			`UPDATE user_credit_accounts SET balance = balance + ?, updated_at = ? WHERE user_id = ?`,
			amount, formatTime(s.now()), userID,
		)
		if err != nil {
			return 0, fmt.Errorf("credit: %w", err)
		}
	}
	return s.balance(ctx, q, userID)
}

// GetBalance returns the account, creating a zero one on first sight.
func (s *Store) GetBalance(ctx context.Context, userID string) (credit.Account, error) {
	if userID == "" {
		return credit.Account{}, credit.ErrUserIDRequired
	}
	var acct credit.Account
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.ensureAccount(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		acct, err = s.loadAccount(ctx, tx, userID)
		return err
	})
	return acct, err
}

// TryDebit subtracts amount if the balance covers it.
func (s *Store) TryDebit(ctx context.Context, userID string, amount int) (bool, error) {
	if err := credit.ValidateAmount(userID, amount); err != nil {
		return false, err
	}
	var ok bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.ensureAccount(ctx, tx, userID); err != nil {
			return err
		}
		if amount == 0 {
			ok = true
			return nil
		}
		var err error
		ok, err = s.debit(ctx, tx, userID, amount)
		return err
	})
	return ok, err
}

// Credit adds amount and returns the new balance.
func (s *Store) Credit(ctx context.Context, userID string, amount int) (int, error) {
	if err := credit.ValidateAmount(userID, amount); err != nil {
		return 0, err
	}
	var balance int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		balance, err = s.credit(ctx, tx, userID, amount)
		return err
	})
	return balance, err
}

// MarkFreeTrialConsumed flips the flag if it is still unset.
func (s *Store) MarkFreeTrialConsumed(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, credit.ErrUserIDRequired
	}
	var won bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.ensureAccount(ctx, tx, userID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE user_credit_accounts SET free_trial_consumed = 1, updated_at = ?
			 WHERE user_id = ? AND free_trial_consumed = 0`,
			formatTime(s.now()), userID,
		)
		if err != nil {
			return fmt.Errorf("mark free trial: %w", err)
		}
		n, err := affected(res)
		won = n == 1
		return err
	})
	return won, err
}

// SetBalance overwrites a balance. Only the repair path uses it.
func (s *Store) SetBalance(ctx context.Context, userID string, balance int) error {
	if err := credit.ValidateAmount(userID, balance); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.setBalance(ctx, tx, userID, balance)
	})
}

func (s *Store) setBalance(ctx context.Context, q queryer, userID string, balance int) error {
	if err := s.ensureAccount(ctx, q, userID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		`UPDATE user_credit_accounts SET balance = ?, updated_at = ? WHERE user_id = ?`,
		balance, formatTime(s.now()), userID,
	)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// AccountIDs returns every user with a credit account.
func (s *Store) AccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM user_credit_accounts ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return ids, nil
}

var _ credit.Ledger = (*Store)(nil)
