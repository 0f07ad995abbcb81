package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ds124wfegd/chess-payments/internal/database/memory"
	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/internal/notifier"
	"github.com/ds124wfegd/chess-payments/internal/service"
	"github.com/ds124wfegd/chess-payments/pkg/queue"
	"github.com/ds124wfegd/chess-payments/pkg/signature"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "whsec_test"
	adminToken = "ops-token"
)

type stubReconciler struct {
	err error
}

func (s stubReconciler) HandleEvent(context.Context, *entity.PaymentEvent) (*service.Outcome, error) {
	return nil, s.err
}

type fixture struct {
	router     *gin.Engine
	store      *memory.Store
	dlq        *queue.MemoryDLQ
	dispatcher *service.Dispatcher
	booking    entity.Booking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	store := memory.NewStore()
	repo := memory.NewRepository(store)
	event := entity.ClubEvent{ID: uuid.New(), Title: "Blitz Night", TotalSeats: 16}
	store.AddEvent(event)
	booking := entity.Booking{
		ID: uuid.New(), EventID: event.ID, Status: entity.BookingStatusPending,
		CheckoutSessionID: "cs_1", BookerEmail: "capa@example.com", Quantity: 1,
	}
	store.AddBooking(booking)

	dlq := queue.NewMemoryDLQ()
	dispatcher := service.NewDispatcher(notifier.NewLogSender(logger), dlq, repo.Bookings, nil,
		queue.NewRetryManager(0, 0), service.DispatcherConfig{}, logger)
	dispatcher.Start()
	t.Cleanup(dispatcher.Close)

	reconciler := service.NewReconcileService(repo,
		service.NewCorrelator(repo.Bookings, service.CorrelatorConfig{}, logger),
		dispatcher, service.NewHoldService(repo, logger),
		service.ReconcileConfig{PersistTimeout: time.Second}, logger)

	router := InitRoutes(
		NewWebhookHandler(signature.NewVerifier(testSecret, time.Minute), reconciler, 4096, logger),
		NewAdminHandler(repo.Bookings, service.NewLedger(repo.Ledger), service.NewNotificationService(dlq, dispatcher, logger)),
		NewHealthHandler(nil, "test"),
		RouterConfig{AdminToken: adminToken, RequestTimeout: 5 * time.Second},
		logger,
	)
	return &fixture{router: router, store: store, dlq: dlq, dispatcher: dispatcher, booking: booking}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func webhookRequest(body []byte, header string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(SignatureHeader, header)
	}
	return req
}

func sessionCompleted(eventID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","created":%d,
		"data":{"object":{"id":"cs_1","object":"checkout.session","payment_intent":"pi_1"}}}`,
		eventID, time.Now().Unix()))
}

func adminRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	return req
}

func TestWebhook_AppliesSignedEvent(t *testing.T) {
	f := newFixture(t)
	body := sessionCompleted("evt_1")

	w := f.do(webhookRequest(body, signature.Sign(testSecret, time.Now(), body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Received bool            `json:"received"`
		Result   service.Outcome `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.Equal(t, service.OutcomeTransitioned, resp.Result.Kind)
	assert.Equal(t, entity.BookingStatusConfirmed, resp.Result.To)

	// redelivery is acknowledged without a second transition
	w = f.do(webhookRequest(body, signature.Sign(testSecret, time.Now(), body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"duplicate"`)
	assert.Equal(t, 1, f.store.LedgerSize())
}

func TestWebhook_RejectsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	body := sessionCompleted("evt_1")

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", signature.Sign("whsec_other", time.Now(), body)},
		{"stale timestamp", signature.Sign(testSecret, time.Now().Add(-time.Hour), body)},
		{"garbage", "v1=deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(webhookRequest(body, tt.header))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	assert.Zero(t, f.store.LedgerSize())
	got, err := f.store.GetByID(context.Background(), f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, got.Status)
}

func TestWebhook_TamperedBody(t *testing.T) {
	f := newFixture(t)
	body := sessionCompleted("evt_1")
	header := signature.Sign(testSecret, time.Now(), body)

	tampered := bytes.Replace(body, []byte("cs_1"), []byte("cs_2"), 1)
	w := f.do(webhookRequest(tampered, header))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhook_BadPayloadAndLimits(t *testing.T) {
	f := newFixture(t)

	for _, body := range [][]byte{
		[]byte(`{"id":"evt_broken","data":{}}`),
		[]byte(`not json`),
	} {
		w := f.do(webhookRequest(body, signature.Sign(testSecret, time.Now(), body)))
		require.Equal(t, http.StatusOK, w.Code, string(body))

		var resp struct {
			Received bool   `json:"received"`
			EventID  string `json:"event_id"`
			Result   struct {
				Outcome string `json:"outcome"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Received)
		assert.Equal(t, "unreadable", resp.Result.Outcome)
	}
	assert.Zero(t, f.store.LedgerSize())

	big := []byte(`{"id":"evt","pad":"` + strings.Repeat("x", 5000) + `"}`)
	w := f.do(webhookRequest(big, signature.Sign(testSecret, time.Now(), big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestWebhook_PersistenceFailureAsksForRedelivery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	failing := stubReconciler{err: fmt.Errorf("%w: check ledger: %w", entity.ErrPersistence, errors.New("timeout"))}

	router := InitRoutes(
		NewWebhookHandler(signature.NewVerifier(testSecret, 0), failing, 0, logger),
		NewAdminHandler(nil, nil, nil),
		NewHealthHandler(nil, "test"),
		RouterConfig{}, logger)

	body := sessionCompleted("evt_1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, webhookRequest(body, signature.Sign(testSecret, time.Now(), body)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/notifications/failed", nil)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	assert.Equal(t, http.StatusOK, f.do(adminRequest(http.MethodGet, "/api/v1/admin/notifications/failed")).Code)
}

func TestAdmin_BookingEvents(t *testing.T) {
	f := newFixture(t)
	body := sessionCompleted("evt_1")
	require.Equal(t, http.StatusOK, f.do(webhookRequest(body, signature.Sign(testSecret, time.Now(), body))).Code)

	w := f.do(adminRequest(http.MethodGet, "/api/v1/admin/bookings/"+f.booking.ID.String()+"/events"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Booking entity.Booking          `json:"booking"`
			Events  []entity.ProcessedEvent `json:"events"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.BookingStatusConfirmed, resp.Data.Booking.Status)
	require.Len(t, resp.Data.Events, 1)
	assert.Equal(t, "evt_1", resp.Data.Events[0].ProviderEventID)

	assert.Equal(t, http.StatusNotFound, f.do(adminRequest(http.MethodGet, "/api/v1/admin/bookings/"+uuid.NewString()+"/events")).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(adminRequest(http.MethodGet, "/api/v1/admin/bookings/42/events")).Code)
}

func TestAdmin_FailedNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	failed := &entity.FailedNotification{
		ID: uuid.NewString(),
		Intent: entity.NotificationIntent{
			BookingID: f.booking.ID,
			Kind:      entity.NotificationBookerConfirmation,
			Payload:   entity.NotificationPayload{BookerEmail: "capa@example.com"},
		},
		Error:    "broker unreachable",
		FailedAt: time.Now(),
		Attempts: 4,
	}
	require.NoError(t, f.dlq.Push(ctx, failed))
	other := *failed
	other.ID = uuid.NewString()
	require.NoError(t, f.dlq.Push(ctx, &other))

	w := f.do(adminRequest(http.MethodGet, "/api/v1/admin/notifications/failed/stats"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queue_size":2`)

	w = f.do(adminRequest(http.MethodPost, "/api/v1/admin/notifications/failed/"+failed.ID+"/resend"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(adminRequest(http.MethodDelete, "/api/v1/admin/notifications/failed/"+other.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(adminRequest(http.MethodDelete, "/api/v1/admin/notifications/failed/"+other.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)

	stats, err := f.dlq.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.QueueSize)

	assert.Equal(t, http.StatusBadRequest, f.do(adminRequest(http.MethodGet, "/api/v1/admin/notifications/failed?limit=0")).Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
}
