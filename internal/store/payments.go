package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/maauso/clearmedia-api/internal/payment"
)

// ErrInvalidTransaction is returned for a transaction without id or user.
var ErrInvalidTransaction = errors.New("store: transaction ID and user ID are required")

// Payments is the payment.Repository view of a Store.
type Payments struct {
	s *Store
}

// Payments returns the payment transaction repository.
func (s *Store) Payments() *Payments {
	return &Payments{s: s}
}

const transactionColumns = `transaction_id, user_id, product_id, credits_granted, event_type, raw_payload, created_at`

// RecordAndCredit inserts the transaction and credits its owner in one
// transaction. The primary key on transaction_id makes a repeated delivery
// insert nothing, and then nothing is credited.
func (p *Payments) RecordAndCredit(ctx context.Context, t *payment.Transaction) (bool, int, error) {
	s := p.s
	if t.ID == "" || t.UserID == "" {
		return false, 0, ErrInvalidTransaction
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var (
		created bool
		balance int
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.insertIgnore()+` INTO payment_transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, t.ProductID, t.Credits, t.EventType, string(t.Payload), formatTime(createdAt),
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}

		amount := t.Credits
		if n == 0 {
			amount = 0
		} else {
			created = true
		}
		balance, err = s.credit(ctx, tx, t.UserID, amount)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return created, balance, nil
}

// transactionRow is the payment_transactions row layout.
type transactionRow struct {
	ID        string `db:"transaction_id"`
	UserID    string `db:"user_id"`
	ProductID string `db:"product_id"`
	Credits   int    `db:"credits_granted"`
	EventType string `db:"event_type"`
	Payload   string `db:"raw_payload"`
	CreatedAt dbTime `db:"created_at"`
}

func (r transactionRow) toTransaction() *payment.Transaction {
	t := &payment.Transaction{
		ID:        r.ID,
		UserID:    r.UserID,
		ProductID: r.ProductID,
		Credits:   r.Credits,
		EventType: r.EventType,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.Payload != "" {
		t.Payload = []byte(r.Payload)
	}
	return t
}

// FindByID loads a recorded transaction.
func (p *Payments) FindByID(ctx context.Context, id string) (*payment.Transaction, error) {
	var row transactionRow
	err := p.s.db.GetContext(ctx, &row,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE transaction_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return row.toTransaction(), nil
}

// ListByUser returns the user's transactions, oldest first.
func (p *Payments) ListByUser(ctx context.Context, userID string) ([]*payment.Transaction, error) {
	var rows []transactionRow
	if err := p.s.db.SelectContext(ctx, &rows,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE user_id = ? ORDER BY created_at, transaction_id`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]*payment.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTransaction())
	}
	return out, nil
}

var _ payment.Repository = (*Payments)(nil)
