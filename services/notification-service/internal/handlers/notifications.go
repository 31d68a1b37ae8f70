package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tabletopreserve/tabletop/libs/auth"
	"github.com/tabletopreserve/tabletop/libs/httpx"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Inbox is the read side of the notifications store.
type Inbox interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]storage.Notification, error)
	MarkOpened(ctx context.Context, id int64, userID string, at time.Time) (time.Time, error)
}

type NotificationHandler struct {
	inbox  Inbox
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationHandler(inbox Inbox, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, logger: logger, now: time.Now}
}

func (h *NotificationHandler) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/notifications", auth.RequireUser(http.HandlerFunc(h.list)))
	mux.Handle("/api/v1/notifications/opened", auth.RequireUser(http.HandlerFunc(h.opened)))
}

type notificationItem struct {
	ID           int64      `json:"id"`
	BookingKind  string     `json:"booking_kind"`
	BookingID    string     `json:"booking_id"`
	ShopID       string     `json:"shop_id"`
	StatusChange string     `json:"status_change"`
	Subject      string     `json:"subject"`
	Body         string     `json:"body"`
	CreatedAt    time.Time  `json:"created_at"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
}

type openedRequest struct {
	ID int64 `json:"id"`
}

type openedResponse struct {
	ID       int64     `json:"id"`
	OpenedAt time.Time `json:"opened_at"`
}

// list returns the caller's notifications, newest first.
func (h *NotificationHandler) list(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, httpx.CodeMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	rows, err := h.inbox.ListForUser(r.Context(), auth.IdentityFromContext(r.Context()).UserID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list notifications failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeUnavailable, "storage temporarily unavailable")
		return
	}
	out := make([]notificationItem, 0, len(rows))
	for _, n := range rows {
		out = append(out, notificationItem{
			ID:           n.ID,
			BookingKind:  n.BookingKind,
			BookingID:    n.BookingID,
			ShopID:       n.ShopID,
			StatusChange: n.StatusChange,
			Subject:      n.Subject,
			Body:         n.Body,
			CreatedAt:    n.CreatedAt,
			OpenedAt:     n.OpenedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// opened records that the caller opened one of their notifications. Opening
// twice keeps the first time.
func (h *NotificationHandler) opened(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, httpx.CodeMethodNotAllowed, "method not allowed")
		return
	}
	var req openedRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeInvalidBody, "invalid json body")
		return
	}
	if req.ID <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeValidation, "id is required")
		return
	}

	at, err := h.inbox.MarkOpened(r.Context(), req.ID, auth.IdentityFromContext(r.Context()).UserID, h.now().UTC())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "notification not found")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "mark notification opened failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.CodeUnavailable, "storage temporarily unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, openedResponse{ID: req.ID, OpenedAt: at})
}
