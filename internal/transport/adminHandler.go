package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ds124wfegd/chess-payments/internal/entity"
	"github.com/ds124wfegd/chess-payments/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type bookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
}

type AdminHandler struct {
	bookings      bookingReader
	ledger        *service.Ledger
	notifications service.NotificationAdmin
}

func NewAdminHandler(bookings bookingReader, ledger *service.Ledger, notifications service.NotificationAdmin) *AdminHandler {
	return &AdminHandler{bookings: bookings, ledger: ledger, notifications: notifications}
}

// GetBookingEvents shows a booking together with every provider event that
// was folded into it.
func (h *AdminHandler) GetBookingEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid booking id")
		return
	}

	booking, err := h.bookings.GetByID(c.Request.Context(), id)
	if errors.Is(err, entity.ErrBookingNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	history, err := h.ledger.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data: gin.H{
			"booking": booking,
			"events":  history,
		},
		Meta: gin.H{"count": len(history)},
	})
}

func (h *AdminHandler) ListFailedNotifications(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		respondError(c, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}

	failed, err := h.notifications.ListFailed(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: failed, Meta: gin.H{"count": len(failed)}})
}

func (h *AdminHandler) FailedNotificationStats(c *gin.Context) {
	stats, err := h.notifications.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: stats})
}

func (h *AdminHandler) ResendNotification(c *gin.Context) {
	result, err := h.notifications.Resend(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, entity.ErrNotificationNotFound):
		respondError(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "notification resent", Data: result})
}

func (h *AdminHandler) DiscardNotification(c *gin.Context) {
	err := h.notifications.Discard(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, entity.ErrNotificationNotFound):
		respondError(c, http.StatusNotFound, err.Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "notification discarded"})
}
