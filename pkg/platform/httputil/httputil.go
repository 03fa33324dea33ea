// Package httputil renders the JSON envelopes shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "likeness/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies decoded by DecodeJSON.
const MaxBodyBytes = 1 << 20

// DataEnvelope wraps successful platform responses.
type DataEnvelope struct {
	Data any `json:"data"`
}

// ErrorResponse is the single error body shape.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes v wrapped in {"data": ...}.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, DataEnvelope{Data: v})
}

// WriteError translates a coded error into the JSON error envelope. Internal
// and authentication failures never carry a description so callers cannot
// learn whether a key exists or what failed inside.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	resp := ErrorResponse{Error: string(code)}
	if de, ok := dErrors.As(err); ok && status != http.StatusInternalServerError && status != http.StatusUnauthorized {
		resp.ErrorDescription = de.Message
	}
	if status == http.StatusInternalServerError {
		resp.Error = string(dErrors.CodeInternal)
	}
	WriteJSON(w, status, resp)
}

// DecodeJSON decodes a bounded JSON body into dst, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
