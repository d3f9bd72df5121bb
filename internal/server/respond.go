package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"donationledger/pkg/types"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.NewValidationError("body", fmt.Sprintf("invalid JSON body: %s", err))
	}
	return nil
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, types.ErrInvalidDelta), errors.Is(err, types.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed"
	case errors.Is(err, types.ErrInvalidReference):
		return http.StatusBadRequest, "invalid_reference"
	case errors.Is(err, types.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, types.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

// writeError maps an error kind onto a status code. Server side failures are
// logged here and their detail is not echoed to the client.
func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	detail := errorDetail{Code: code, Message: err.Error()}
	var validation *types.ValidationError
	if errors.As(err, &validation) {
		detail.Field = validation.Field
		detail.Message = validation.Message
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		detail.Message = http.StatusText(status)
	}

	s.writeJSON(w, status, errorBody{Error: detail})
}
