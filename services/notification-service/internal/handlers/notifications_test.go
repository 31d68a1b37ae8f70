package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tabletopreserve/tabletop/libs/auth"
	"github.com/tabletopreserve/tabletop/services/notification-service/internal/storage"
)

type fakeInbox struct {
	rows      []storage.Notification
	lastUser  string
	lastLimit int
	err       error
}

func (f *fakeInbox) ListForUser(_ context.Context, userID string, limit int) ([]storage.Notification, error) {
	f.lastUser, f.lastLimit = userID, limit
	if f.err != nil {
		return nil, f.err
	}
	var out []storage.Notification
	for _, n := range f.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeInbox) MarkOpened(_ context.Context, id int64, userID string, at time.Time) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	for i := range f.rows {
		n := &f.rows[i]
		if n.ID != id || n.UserID != userID {
			continue
		}
		if n.OpenedAt == nil {
			n.OpenedAt = &at
		}
		return *n.OpenedAt, nil
	}
	return time.Time{}, storage.ErrNotFound
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestMux(inbox Inbox) *http.ServeMux {
	h := NewNotificationHandler(inbox, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return testNow }
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func serveAs(mux *http.ServeMux, req *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		req = req.WithContext(auth.WithIdentityContext(req.Context(), auth.Identity{UserID: userID}))
	}
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	return rw
}

func seeded() *fakeInbox {
	return &fakeInbox{rows: []storage.Notification{
		{ID: 3, UserID: "user-1", BookingID: "res-2", StatusChange: "pending->confirmed", Subject: "Reservation confirmed", CreatedAt: testNow},
		{ID: 1, UserID: "user-1", BookingID: "res-1", StatusChange: "new->pending", Subject: "Reservation request received", CreatedAt: testNow.Add(-time.Hour)},
		{ID: 2, UserID: "user-2", BookingID: "res-9", StatusChange: "new->pending", CreatedAt: testNow.Add(-30 * time.Minute)},
	}}
}

func TestListNotifications(t *testing.T) {
	t.Run("requires a user", func(t *testing.T) {
		rw := serveAs(newTestMux(seeded()), httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "")
		if rw.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rw.Code)
		}
	})

	t.Run("lists the caller's notifications with the default limit", func(t *testing.T) {
		inbox := seeded()
		rw := serveAs(newTestMux(inbox), httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-1")
		if rw.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rw.Code)
		}
		if inbox.lastUser != "user-1" || inbox.lastLimit != defaultListLimit {
			t.Fatalf("unexpected query user=%s limit=%d", inbox.lastUser, inbox.lastLimit)
		}
		var got []notificationItem
		if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 2 || got[0].ID != 3 || got[1].ID != 1 {
			t.Fatalf("unexpected notifications %+v", got)
		}
	})

	t.Run("empty inbox is an empty list", func(t *testing.T) {
		rw := serveAs(newTestMux(&fakeInbox{}), httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-3")
		if rw.Code != http.StatusOK || strings.TrimSpace(rw.Body.String()) != "[]" {
			t.Fatalf("expected [], got %d %s", rw.Code, rw.Body.String())
		}
	})

	t.Run("limit is bounded", func(t *testing.T) {
		for _, limit := range []string{"0", "101", "ten"} {
			rw := serveAs(newTestMux(seeded()), httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit="+limit, nil), "user-1")
			if rw.Code != http.StatusBadRequest {
				t.Fatalf("limit %s: expected 400, got %d", limit, rw.Code)
			}
		}
	})

	t.Run("storage failure", func(t *testing.T) {
		rw := serveAs(newTestMux(&fakeInbox{err: errors.New("db down")}), httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil), "user-1")
		if rw.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rw.Code)
		}
	})
}

func TestMarkOpened(t *testing.T) {
	post := func(mux *http.ServeMux, body, userID string) *httptest.ResponseRecorder {
		return serveAs(mux, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/opened", strings.NewReader(body)), userID)
	}

	t.Run("stamps the first open", func(t *testing.T) {
		inbox := seeded()
		mux := newTestMux(inbox)
		rw := post(mux, `{"id":3}`, "user-1")
		if rw.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
		}
		var got openedResponse
		if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil || got.ID != 3 || !got.OpenedAt.Equal(testNow) {
			t.Fatalf("unexpected response %s", rw.Body.String())
		}
		if inbox.rows[0].OpenedAt == nil {
			t.Fatal("expected notification marked opened")
		}
	})

	t.Run("other users' notifications are not found", func(t *testing.T) {
		inbox := seeded()
		rw := post(newTestMux(inbox), `{"id":2}`, "user-1")
		if rw.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rw.Code)
		}
		if inbox.rows[2].OpenedAt != nil {
			t.Fatal("expected notification untouched")
		}
	})

	t.Run("bad requests", func(t *testing.T) {
		mux := newTestMux(seeded())
		if rw := post(mux, `{"id":0}`, "user-1"); rw.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing id, got %d", rw.Code)
		}
		if rw := post(mux, `{`, "user-1"); rw.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad json, got %d", rw.Code)
		}
		if rw := post(mux, `{"id":3}`, ""); rw.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rw.Code)
		}
	})
}
