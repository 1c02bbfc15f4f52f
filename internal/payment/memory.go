package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maauso/clearmedia-api/internal/credit"
)

// MemoryRepository is an in-memory Repository backed by a credit.Ledger.
type MemoryRepository struct {
	mu     sync.Mutex
	txs    map[string]*Transaction
	ledger credit.Ledger
}

// NewMemoryRepository creates a MemoryRepository crediting ledger.
func NewMemoryRepository(ledger credit.Ledger) *MemoryRepository {
	return &MemoryRepository{
		txs:    make(map[string]*Transaction),
		ledger: ledger,
	}
}

// RecordAndCredit inserts tx under the repository lock, then credits the
// ledger. If the credit fails the row stays recorded for the repair path.
func (r *MemoryRepository) RecordAndCredit(ctx context.Context, tx *Transaction) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.txs[tx.ID]; ok {
		acct, err := r.ledger.GetBalance(ctx, tx.UserID)
		if err != nil {
			return false, 0, err
		}
		return false, acct.Balance, nil
	}

	stored := *tx
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.txs[tx.ID] = &stored

	balance, err := r.ledger.Credit(ctx, tx.UserID, tx.Credits)
	if err != nil {
		return true, 0, fmt.Errorf("payment: credit transaction %s: %w", tx.ID, err)
	}
	return true, balance, nil
}

// FindByID returns a copy of the transaction.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

// ListByUser returns copies of the user's transactions, oldest first.
func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Transaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
