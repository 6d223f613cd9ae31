package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/transfa/payout-gateway/internal/domain"
)

// kindToStatus maps request-level error kinds to HTTP status codes.
var kindToStatus = map[string]int{
	"authentication":    http.StatusUnauthorized,
	"validation":        http.StatusBadRequest,
	"payload_too_large": http.StatusRequestEntityTooLarge,
	"timeout":           http.StatusGatewayTimeout,
	"canceled":          http.StatusRequestTimeout,
}

// errorKind classifies an error that rejected a whole request.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return "authentication"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.As(err, &tooLarge):
		return "payload_too_large"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

func httpStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[errorKind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// publicMessage hides internal error detail from callers.
func publicMessage(err error) string {
	if errorKind(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
