package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/maauso/clearmedia-api/internal/payment"
)

const maxWebhookBytes = 1 << 20

// PaymentWebhook handles POST /payments/webhook requests from the payment provider.
// Duplicates are acknowledged with 200 so the provider stops retrying;
// storage failures return 500 so it tries again.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_body")
		return
	}

	res, err := h.deps.Webhooks.Handle(r.Context(), raw, r.Header.Get(payment.SignatureHeader))
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid webhook signature", "invalid_signature")
		return
	case errors.Is(err, payment.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid webhook payload", "invalid_payload")
		return
	case err != nil:
		h.logger.Error("failed to process payment webhook",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to process webhook", "webhook_failed")
		return
	}

	msg := "ok"
	switch res.Outcome {
	case payment.OutcomeDuplicate:
		msg = "already processed"
	case payment.OutcomeIgnored:
		msg = "event ignored"
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Message: msg})
}

// CreateCheckout handles POST /payments/checkout requests.
func (h *Handlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if h.deps.Checkout == nil {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured", "payments_unavailable")
		return
	}

	var req CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, known := h.deps.Products.Credits(req.ProductID); !known {
		writeError(w, http.StatusBadRequest, "unknown product", "unknown_product")
		return
	}

	url, err := h.deps.Checkout.CreateCheckout(r.Context(), req.ProductID, payment.CheckoutMetadata{
		InternalCustomerID: userID,
		Email:              req.Email,
	})
	if err != nil {
		h.logger.Error("failed to create checkout",
			slog.String("user_id", userID),
			slog.String("product_id", req.ProductID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to create checkout", "checkout_failed")
		return
	}

	h.logger.Info("checkout created",
		slog.String("user_id", userID),
		slog.String("product_id", req.ProductID),
	)
	writeJSON(w, http.StatusOK, CheckoutResponse{CheckoutURL: url})
}
