package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Static errors for webhook handling.
var (
	// ErrInvalidSignature is returned when a present signature does not match.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrSecretRequired is returned when the reconciler has no shared secret.
	ErrSecretRequired = errors.New("payment: webhook secret is required")
)

// Outcome is what handling a webhook did.
type Outcome string

const (
	// OutcomeCredited means the transaction was recorded and credited.
	OutcomeCredited Outcome = "credited"
	// OutcomeDuplicate means the transaction was already recorded.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the event carries no creditable transaction.
	OutcomeIgnored Outcome = "ignored"
)

// Result describes an acknowledged webhook.
type Result struct {
	Outcome       Outcome
	TransactionID string
	UserID        string
	Credits       int
	Balance       int
}

// WebhookReconciler verifies, de-duplicates and credits payment events.
type WebhookReconciler struct {
	repo     Repository
	products ProductCredits
	secret   string
	logger   *slog.Logger
}

// NewWebhookReconciler creates a WebhookReconciler.
// The product table is resolved once by the caller and never re-read.
func NewWebhookReconciler(repo Repository, products ProductCredits, secret string, logger *slog.Logger) (*WebhookReconciler, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	if products == nil {
		products = ProductCredits{}
	}
	return &WebhookReconciler{
		repo:     repo,
		products: products,
		secret:   secret,
		logger:   logger,
	}, nil
}

// Handle processes one webhook delivery.
//
// A present signature must match or ErrInvalidSignature is returned with
// no state touched. A missing signature is logged and accepted. Unknown
// products are recorded with zero credits. A repeated transaction id is
// acknowledged as OutcomeDuplicate without writing anything.
func (w *WebhookReconciler) Handle(ctx context.Context, raw []byte, signature string) (Result, error) {
	if strings.TrimSpace(signature) == "" {
		w.logger.Warn("webhook signature missing, skipping verification",
			slog.Int("body_bytes", len(raw)),
		)
	} else if !VerifySignature(raw, signature, w.secret) {
		w.logger.Warn("webhook signature mismatch")
		return Result{}, ErrInvalidSignature
	}

	ev, err := ParseEvent(raw)
	if err != nil {
		return Result{}, err
	}

	if !ev.Grants() {
		w.logger.Info("webhook event ignored",
			slog.String("event_type", ev.Type),
			slog.Bool("has_transaction_id", ev.TransactionID != ""),
			slog.Bool("has_user_id", ev.UserID != ""),
		)
		return Result{Outcome: OutcomeIgnored, TransactionID: ev.TransactionID, UserID: ev.UserID}, nil
	}

	credits, known := w.products.Credits(ev.ProductID)
	if !known {
		w.logger.Warn("webhook product not in credit table, recording with zero credits",
			slog.String("transaction_id", ev.TransactionID),
			slog.String("product_id", ev.ProductID),
		)
	}

	tx := &Transaction{
		ID:        ev.TransactionID,
		UserID:    ev.UserID,
		ProductID: ev.ProductID,
		Credits:   credits,
		EventType: ev.Type,
		Payload:   append([]byte(nil), raw...),
	}

	created, balance, err := w.repo.RecordAndCredit(ctx, tx)
	if err != nil {
		return Result{}, fmt.Errorf("payment: record transaction: %w", err)
	}

	res := Result{
		Outcome:       OutcomeCredited,
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Credits:       credits,
		Balance:       balance,
	}
	if !created {
		res.Outcome = OutcomeDuplicate
		res.Credits = 0
		w.logger.Info("webhook transaction already processed",
			slog.String("transaction_id", tx.ID),
		)
		return res, nil
	}

	w.logger.Info("webhook transaction credited",
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", tx.UserID),
		slog.String("product_id", tx.ProductID),
		slog.Int("credits", credits),
		slog.Int("balance", balance),
	)
	return res, nil
}
