package payment

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Provider event types that grant credits.
const (
	EventCheckoutCompleted = "checkout.completed"
	EventSubscriptionPaid  = "subscription.paid"
)

// ErrInvalidPayload is returned when a webhook body is not a JSON event.
var ErrInvalidPayload = errors.New("payment: invalid webhook payload")

// Event is the part of a provider event needed to grant credits.
// TransactionID or UserID are empty when the event does not grant credits.
type Event struct {
	Type          string
	TransactionID string
	UserID        string
	ProductID     string
}

// Grants reports whether the event carries a creditable transaction.
func (e Event) Grants() bool {
	return e.TransactionID != "" && e.UserID != ""
}

type envelope struct {
	EventType string      `json:"eventType"`
	Object    eventObject `json:"object"`
}

type eventObject struct {
	ID                string     `json:"id"`
	LastTransactionID string     `json:"last_transaction_id"`
	Metadata          metadata   `json:"metadata"`
	Product           productRef `json:"product"`
	Order             *order     `json:"order"`
	Customer          *customer  `json:"customer"`
}

type order struct {
	Status      string     `json:"status"`
	Transaction string     `json:"transaction"`
	Product     productRef `json:"product"`
}

type customer struct {
	Metadata metadata `json:"metadata"`
}

type metadata struct {
	InternalCustomerID string `json:"internal_customer_id"`
}

// productRef accepts either a product id string or an object with an id.
type productRef string

func (p *productRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*p = productRef(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*p = productRef(obj.ID)
	return nil
}

// ParseEvent extracts the transaction, user and product of a provider event.
//
// subscription.paid uses object.last_transaction_id and object.metadata.
// checkout.completed only grants when object.order.status is "paid"; the
// user comes from the customer metadata, falling back to the object's.
func ParseEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	ev := Event{Type: env.EventType}
	obj := env.Object

	switch {
	case env.EventType == EventSubscriptionPaid && obj.LastTransactionID != "":
		ev.TransactionID = obj.LastTransactionID
		ev.UserID = obj.Metadata.InternalCustomerID
		ev.ProductID = string(obj.Product)

	case env.EventType == EventCheckoutCompleted && obj.Order != nil && obj.Order.Status == "paid":
		ev.TransactionID = obj.Order.Transaction
		if obj.Customer != nil {
			ev.UserID = obj.Customer.Metadata.InternalCustomerID
		}
		if ev.UserID == "" {
			ev.UserID = obj.Metadata.InternalCustomerID
		}
		ev.ProductID = string(obj.Product)
		if ev.ProductID == "" {
			ev.ProductID = string(obj.Order.Product)
		}
	}

	return ev, nil
}
