// Package payment turns payment-provider events into credit grants.
// A transaction id is credited at most once; the transaction row is the
// durable record that ledger reconciliation recomputes balances from.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrTransactionNotFound is returned when a transaction id is unknown.
var ErrTransactionNotFound = errors.New("payment: transaction not found")

// Transaction is one recorded payment.
type Transaction struct {
	// ID is the provider's transaction id and the de-duplication key.
	ID string
	// UserID is the account credited.
	UserID string
	// ProductID is the purchased product, empty if the event carried none.
	ProductID string
	// Credits is the amount granted; zero for unknown products.
	Credits int
	// EventType is the provider event that carried the transaction.
	EventType string
	// Payload is the raw event body kept for audit.
	Payload json.RawMessage
	// CreatedAt is when the transaction was first recorded.
	CreatedAt time.Time
}

// Repository records transactions and applies their credits.
type Repository interface {
	// RecordAndCredit inserts tx and credits tx.Credits to tx.UserID as one
	// logical unit. If a transaction with the same ID already exists,
	// nothing is written and created is false.
	RecordAndCredit(ctx context.Context, tx *Transaction) (created bool, balance int, err error)

	// FindByID returns a recorded transaction.
	// Returns ErrTransactionNotFound if it doesn't exist.
	FindByID(ctx context.Context, id string) (*Transaction, error)

	// ListByUser returns the user's transactions, oldest first.
	ListByUser(ctx context.Context, userID string) ([]*Transaction, error)
}
