package service

import (
	"testing"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    entity.PaymentEvent
		wantErr bool
	}{
		{
			name: "checkout session",
			body: `{"id":"evt_1","type":"checkout.session.completed","created":1700000000,
				"data":{"object":{"id":"cs_1","object":"checkout.session","payment_intent":"pi_1",
				"client_reference_id":"b-ref","metadata":{}}}}`,
			want: entity.PaymentEvent{
				ID: "evt_1", Type: entity.EventCheckoutSessionCompleted, Created: time.Unix(1700000000, 0).UTC(),
				ObjectID: "cs_1", BookingID: "b-ref", PaymentReference: "pi_1", SessionID: "cs_1",
			},
		},
		{
			name: "payment intent uses own id as reference",
			body: `{"id":"evt_2","type":"payment_intent.succeeded","created":1700000001,"livemode":true,
				"data":{"object":{"id":"pi_2","object":"payment_intent","metadata":{"booking_id":"b-meta"}}}}`,
			want: entity.PaymentEvent{
				ID: "evt_2", Type: entity.EventPaymentIntentSucceeded, Created: time.Unix(1700000001, 0).UTC(),
				Livemode: true, ObjectID: "pi_2", BookingID: "b-meta", PaymentReference: "pi_2",
			},
		},
		{
			name: "metadata wins over client reference",
			body: `{"id":"evt_3","type":"checkout.session.expired","created":1700000002,
				"data":{"object":{"id":"cs_3","object":"checkout.session","client_reference_id":"b-ref",
				"metadata":{"booking_id":"b-meta"}}}}`,
			want: entity.PaymentEvent{
				ID: "evt_3", Type: entity.EventCheckoutSessionExpired, Created: time.Unix(1700000002, 0).UTC(),
				ObjectID: "cs_3", BookingID: "b-meta", SessionID: "cs_3",
			},
		},
		{
			name: "charge carries intent reference",
			body: `{"id":"evt_4","type":"charge.dispute.created","created":1700000003,
				"data":{"object":{"id":"dp_4","object":"dispute","payment_intent":"pi_4"}}}`,
			want: entity.PaymentEvent{
				ID: "evt_4", Type: entity.EventChargeDisputeCreated, Created: time.Unix(1700000003, 0).UTC(),
				ObjectID: "dp_4", PaymentReference: "pi_4",
			},
		},
		{name: "not json", body: `{"id":`, wantErr: true},
		{name: "missing id", body: `{"type":"charge.succeeded","data":{"object":{}}}`, wantErr: true},
		{name: "bad created", body: `{"id":"evt","type":"charge.succeeded","created":"yesterday"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePaymentEvent([]byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, entity.ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}
