package handlers

import (
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/prayerline/internal/auth"
	"github.com/jmylchreest/prayerline/internal/service"
)

// storageApology is shown when the durable store cannot be reached.
const storageApology = "We're having trouble saving your conversation right now. Please try again in a moment."

// toHTTPError converts a service error into a huma status error. Unexpected
// errors are logged and hidden behind a generic 500.
func toHTTPError(logger *slog.Logger, op string, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return huma.Error404NotFound("session not found")
	case errors.Is(err, service.ErrIntentionNotFound):
		return huma.Error404NotFound("intention not found")
	case errors.Is(err, service.ErrInvalidInput):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		return huma.Error401Unauthorized("checkout link has expired")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingClaims):
		return huma.Error400BadRequest("invalid checkout token")
	case errors.Is(err, service.ErrConflict):
		return huma.Error409Conflict("the conversation changed while this request was running, please retry")
	case errors.Is(err, service.ErrDuplicateEvent):
		return huma.Error409Conflict("payment event already applied")
	case errors.Is(err, service.ErrAlreadyDelivered):
		return huma.Error409Conflict("intention already delivered")
	case errors.Is(err, service.ErrUpsellLocked):
		return huma.Error412PreconditionFailed(err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		logger.Error("storage unavailable", "op", op, "error", err)
		return huma.Error503ServiceUnavailable(storageApology)
	default:
		logger.Error("request failed", "op", op, "error", err)
		return huma.Error500InternalServerError("something went wrong, please try again")
	}
}
