package httpx

import (
	"encoding/json"
	"net/http"
)

const (
	CodeMethodNotAllowed = "method_not_allowed"
	CodeInvalidBody      = "invalid_request_body"
	CodeValidation       = "validation_failed"
	CodeConflict         = "not_available"
	CodeNotFound         = "not_found"
	CodeInvalidState     = "invalid_state"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeUnavailable      = "dependency_unavailable"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to build response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{Error: msg, Code: code})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
