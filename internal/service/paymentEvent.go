package service

import (
	"encoding/json"
	"fmt"

	"github.com/ds124wfegd/chess-payments/internal/entity"
)

const metadataBookingKey = "booking_id"

type providerEvent struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Created  entity.UnixTime `json:"created"`
	Livemode bool            `json:"livemode"`
	Data     struct {
		Object providerObject `json:"object"`
	} `json:"data"`
}

type providerObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// ParsePaymentEvent decodes a body that has already passed signature
// verification.
func ParsePaymentEvent(body []byte) (*entity.PaymentEvent, error) {
	var raw providerEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidPayload, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: event id and type are required", entity.ErrInvalidPayload)
	}

	obj := raw.Data.Object
	evt := &entity.PaymentEvent{
		ID:        raw.ID,
		Type:      entity.EventType(raw.Type),
		Created:   raw.Created.Time,
		Livemode:  raw.Livemode,
		ObjectID:  obj.ID,
		BookingID: obj.Metadata[metadataBookingKey],
	}

	switch obj.Object {
	case "payment_intent":
		evt.PaymentReference = obj.ID
	case "checkout.session":
		evt.SessionID = obj.ID
		evt.PaymentReference = obj.PaymentIntent
		if evt.BookingID == "" {
			evt.BookingID = obj.ClientReferenceID
		}
	default: // charge, dispute
		evt.PaymentReference = obj.PaymentIntent
	}

	return evt, nil
}
