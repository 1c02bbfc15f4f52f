// Package credit provides the per-user credit ledger: balances and the
// one-time free-trial flag, mutated only through atomic conditional updates.
package credit

import (
	"context"
	"errors"
	"time"
)

// Static errors for ledger operations.
var (
	// ErrUserIDRequired is returned when an operation is called without a user ID.
	ErrUserIDRequired = errors.New("credit: user ID is required")
	// ErrInvalidAmount is returned when a debit or credit amount is negative.
	ErrInvalidAmount = errors.New("credit: amount must not be negative")
)

// Account is a user's credit account.
type Account struct {
	// UserID is the opaque identity of the account owner.
	UserID string
	// Balance is the spendable credit balance. It never goes below zero.
	Balance int
	// FreeTrialConsumed reports whether the one-time free trial was used.
	// It only ever moves from false to true.
	FreeTrialConsumed bool
	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time
}

// Ledger is the authoritative store of credit accounts.
// Every mutating method must be a single atomic conditional update at the
// storage layer, never a read followed by a separate write.
type Ledger interface {
	// GetBalance returns the account for userID, creating a zero account
	// when none exists yet.
	GetBalance(ctx context.Context, userID string) (Account, error)

	// TryDebit subtracts amount if the balance covers it and reports whether
	// it did. Insufficient balance is a false return, not an error.
	TryDebit(ctx context.Context, userID string, amount int) (bool, error)

	// Credit adds amount to the balance, creating the account if needed,
	// and returns the new balance.
	Credit(ctx context.Context, userID string, amount int) (int, error)

	// MarkFreeTrialConsumed flips the free-trial flag and reports whether this
	// call was the one that flipped it.
	MarkFreeTrialConsumed(ctx context.Context, userID string) (bool, error)
}

// ValidateAmount checks the common preconditions of TryDebit and Credit.
func ValidateAmount(userID string, amount int) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}
