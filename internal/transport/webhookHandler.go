package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const SignatureHeader = "Stripe-Signature"

type verifier interface {
	Verify(header string, body []byte) error
}

type WebhookHandler struct {
	verifier     verifier
	reconciler   service.Reconciler
	maxBodyBytes int64
	log          logrus.FieldLogger
}

func NewWebhookHandler(v verifier, reconciler service.Reconciler, maxBodyBytes int64, log logrus.FieldLogger) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{verifier: v, reconciler: reconciler, maxBodyBytes: maxBodyBytes, log: log}
}

// HandlePaymentEvent answers 2xx for everything that must not be redelivered,
// 401 for unauthenticated requests and 5xx only when the provider should retry.
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondError(c, http.StatusBadRequest, "failed to read body")
		return
	}

	// the raw body is verified before anything looks at its content
	if err := h.verifier.Verify(c.GetHeader(SignatureHeader), body); err != nil {
		err = fmt.Errorf("%w: %w", entity.ErrAuthentication, err)
		h.log.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Rejected webhook")
		respondError(c, http.StatusUnauthorized, "invalid signature")
		return
	}

	evt, err := service.ParsePaymentEvent(body)
	if err != nil {
		// authentic but unreadable: acknowledge, a redelivery would be identical
		var raw struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(body, &raw)
		h.log.WithError(err).WithField("event_id", raw.ID).Warn("Signed webhook with unreadable payload, acknowledging")
		c.JSON(http.StatusOK, gin.H{
			"received": true,
			"event_id": raw.ID,
			"result":   service.Outcome{Kind: service.OutcomeUnreadable},
		})
		return
	}

	outcome, err := h.reconciler.HandleEvent(c.Request.Context(), evt)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"event_id":   evt.ID,
			"event_type": evt.Type,
		}).Error("Failed to reconcile event, provider will redeliver")
		respondError(c, http.StatusInternalServerError, "temporary failure")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"event_id": evt.ID,
		"result":   outcome,
	})
}
