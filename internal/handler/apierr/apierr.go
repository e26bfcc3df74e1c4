// Package apierr maps service errors onto HTTP responses.
package apierr

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/zhouzirui/epiphany/backend/internal/service/ai"
	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
	"github.com/zhouzirui/epiphany/backend/internal/store"
	"github.com/zhouzirui/epiphany/backend/pkg/utils"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, discovery.ErrPersonaNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, discovery.ErrInterviewInProgress), errors.Is(err, discovery.ErrNoFollowUps):
		return http.StatusConflict
	case errors.Is(err, discovery.ErrMissingBrief), errors.Is(err, ai.ErrMissingAPIKey),
		errors.Is(err, interview.ErrUnknownThread):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ai.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body. Server errors are logged.
func Respond(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[http] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	utils.RespondError(w, status, err.Error())
}
