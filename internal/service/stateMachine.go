package service

import "github.com/ds124wfegd/chess-payments/internal/entity"

// NextState is the booking transition table. Every combination it does not
// list is a no-op. Nothing leads back to pending, and cancelled and refunded
// are never left.
func NextState(current entity.BookingStatus, evt *entity.PaymentEvent) entity.Transition {
	next, ok := nextStatus(current, evt.Type)
	if !ok || next == current {
		return entity.Transition{From: current, To: current}
	}
	return entity.Transition{From: current, To: next, Transitioned: true}
}

func nextStatus(current entity.BookingStatus, eventType entity.EventType) (entity.BookingStatus, bool) {
	if current.IsTerminal() {
		return "", false
	}

	switch eventType {
	case entity.EventCheckoutSessionCompleted:
		if current == entity.BookingStatusPending {
			return entity.BookingStatusConfirmed, true
		}

	case entity.EventPaymentIntentCreated:
		if current == entity.BookingStatusPending {
			return entity.BookingStatusVerified, true
		}

	case entity.EventPaymentIntentSucceeded, entity.EventChargeSucceeded:
		if current != entity.BookingStatusVerified {
			return entity.BookingStatusVerified, true
		}

	case entity.EventPaymentIntentFailed:
		switch current {
		case entity.BookingStatusPending, entity.BookingStatusConfirmed, entity.BookingStatusVerified:
			return entity.BookingStatusFailed, true
		}

	case entity.EventChargeDisputeCreated:
		switch current {
		case entity.BookingStatusConfirmed, entity.BookingStatusVerified:
			return entity.BookingStatusDisputed, true
		}

	case entity.EventCheckoutSessionExpired:
		if current == entity.BookingStatusPending {
			return entity.BookingStatusCancelled, true
		}
	}

	return "", false
}

// signalsPayment reports whether the event means money was taken.
func signalsPayment(t entity.EventType) bool {
	switch t {
	case entity.EventCheckoutSessionCompleted, entity.EventPaymentIntentSucceeded, entity.EventChargeSucceeded:
		return true
	}
	return false
}
