package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyz(t *testing.T) {
	okCheck := func(context.Context) error { return nil }
	downCheck := func(context.Context) error { return errors.New("connection refused") }

	cases := []struct {
		name   string
		checks []ReadyCheck
		code   int
	}{
		{"no checks", nil, http.StatusOK},
		{"all ok", []ReadyCheck{{Name: "db", Check: okCheck}}, http.StatusOK},
		{"required down", []ReadyCheck{{Name: "db", Check: okCheck}, {Name: "kafka", Check: downCheck}}, http.StatusServiceUnavailable},
		{"optional down", []ReadyCheck{{Name: "redis", Optional: true, Check: downCheck}}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := NewBaseMuxWithReady(tc.checks...)
			rw := httptest.NewRecorder()
			mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rw.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rw.Code)
			}
			var report readyReport
			if err := json.Unmarshal(rw.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode report: %v", err)
			}
			for _, c := range tc.checks {
				if _, ok := report.Checks[c.Name]; !ok {
					t.Fatalf("expected check %q in report", c.Name)
				}
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("DEBUG"); got.String() != "DEBUG" {
		t.Fatalf("expected DEBUG, got %s", got)
	}
	if got := ParseLevel(""); got.String() != "INFO" {
		t.Fatalf("expected INFO default, got %s", got)
	}
}
