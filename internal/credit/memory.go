package credit

import (
	"context"
	"sync"
	"time"
)

// Compile-time check that MemoryLedger implements Ledger.
var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory implementation of Ledger guarded by a mutex.
// Suitable for development and testing; the SQL store is used in production.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*Account
	now      func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[string]*Account),
		now:      time.Now,
	}
}

// account returns the account for userID, creating it when absent.
// Callers must hold l.mu.
func (l *MemoryLedger) account(userID string) *Account {
	acc, ok := l.accounts[userID]
	if !ok {
		acc = &Account{UserID: userID, UpdatedAt: l.now()}
		l.accounts[userID] = acc
	}
	return acc
}

// GetBalance returns a copy of the account, creating it lazily.
func (l *MemoryLedger) GetBalance(_ context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, ErrUserIDRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.account(userID), nil
}

// TryDebit subtracts amount when the balance covers it.
func (l *MemoryLedger) TryDebit(_ context.Context, userID string, amount int) (bool, error) {
	if err := ValidateAmount(userID, amount); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(userID)
	if acc.Balance < amount {
		return false, nil
	}
	if amount > 0 {
		acc.Balance -= amount
		acc.UpdatedAt = l.now()
	}
	return true, nil
}

// Credit adds amount and returns the new balance.
func (l *MemoryLedger) Credit(_ context.Context, userID string, amount int) (int, error) {
	if err := ValidateAmount(userID, amount); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(userID)
	acc.Balance += amount
	acc.UpdatedAt = l.now()
	return acc.Balance, nil
}

// MarkFreeTrialConsumed sets the flag if it is still false.
func (l *MemoryLedger) MarkFreeTrialConsumed(_ context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrUserIDRequired
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(userID)
	if acc.FreeTrialConsumed {
		return false, nil
	}
	acc.FreeTrialConsumed = true
	acc.UpdatedAt = l.now()
	return true, nil
}

// SetBalance overwrites a balance. It exists for seeding and for the
// reconciliation repair path; regular flows use TryDebit and Credit.
func (l *MemoryLedger) SetBalance(_ context.Context, userID string, balance int) error {
	if err := ValidateAmount(userID, balance); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(userID)
	acc.Balance = balance
	acc.UpdatedAt = l.now()
	return nil
}
