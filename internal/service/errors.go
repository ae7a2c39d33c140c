package service

import (
	"errors"
	"fmt"

	"github.com/jmylchreest/prayerline/internal/repository"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrStorageUnavailable = errors.New("session store unavailable")
	ErrConflict           = errors.New("session was modified by another request")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUpsellLocked       = errors.New("upsell is not available yet")
	ErrDuplicateEvent     = errors.New("payment event already applied")
	ErrIntentionNotFound  = errors.New("intention not found")
	ErrAlreadyDelivered   = errors.New("intention already delivered")
)

// errRejected aborts an update that must persist nothing.
var errRejected = errors.New("turn rejected")

// storeError maps repository failures onto service errors. Errors raised by
// the service inside a mutation pass through unchanged.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrHistoryRewritten):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrDuplicatePayment):
		return ErrDuplicateEvent
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUpsellLocked),
		errors.Is(err, ErrDuplicateEvent),
		errors.Is(err, errRejected):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
