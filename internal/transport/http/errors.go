package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"virtualaddresshub/backend/internal/auth"
	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/service"
	"virtualaddresshub/backend/internal/storage"
)

// errorMessages maps business errors to client-facing text.
var errorMessages = map[error]string{
	// Mail items
	storage.ErrMailItemNotFound: "mail item not found",
	service.ErrNotOwner:         "you do not have access to this mail item",
	service.ErrNoScanAvailable:  "no scan is available for this mail item",

	// Forwarding
	storage.ErrRequestNotFound:       "forwarding request not found",
	service.ErrKycNotApproved:        "identity verification is required before mail can be forwarded",
	service.ErrStorageExpired:        "the storage period for this mail item has expired",
	service.ErrAdminOverrideRequired: "this item has expired; repeat the request with the override flag to proceed",
	service.ErrDuplicateRequest:      "a request with this idempotency key was already received",
	service.ErrRateLimited:           "too many forwarding requests; please try again later",
	service.ErrNoForwardInProgress:   "no forward is in progress for this mail item",
	service.ErrRequestNotCancellable: "this forwarding request can no longer be cancelled",

	// Users and auth
	storage.ErrUserNotFound:     "user not found",
	auth.ErrInvalidEmail:        "invalid email address",
	auth.ErrEmailExists:         "an account with this email already exists",
	auth.ErrInvalidCredentials:  "invalid email or password",
	auth.ErrUserInactive:        "this account has been deactivated",
	service.ErrInvalidKycStatus: "unknown KYC status",

	// Webhooks
	storage.ErrWebhookNotFound: "webhook not found",
}

// GetErrorMessage resolves the client-facing text for an error.
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// respondServiceError maps a service error onto the HTTP surface.
// Guard rejections map to 409 and 429, the KYC gate to 403, the
// expiry gate to 403 and 412, and transition or vocabulary failures
// to 409 and 400 respectively.
func respondServiceError(c *gin.Context, err error) {
	var transitionErr *domain.TransitionError
	var statusErr *domain.InvalidStatusError

	switch {
	case errors.Is(err, storage.ErrMailItemNotFound),
		errors.Is(err, storage.ErrRequestNotFound),
		errors.Is(err, storage.ErrUserNotFound),
		errors.Is(err, storage.ErrWebhookNotFound):
		NotFound(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrNotOwner):
		Forbidden(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrDuplicateRequest):
		Conflict(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrRateLimited):
		TooManyRequests(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrKycNotApproved),
		errors.Is(err, service.ErrStorageExpired):
		Forbidden(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrAdminOverrideRequired):
		PreconditionFailed(c, GetErrorMessage(err))
	case errors.Is(err, service.ErrRequestNotCancellable),
		errors.Is(err, service.ErrNoForwardInProgress):
		Conflict(c, GetErrorMessage(err))
	case errors.As(err, &transitionErr):
		Conflict(c, err.Error())
	case errors.As(err, &statusErr), errors.Is(err, service.ErrInvalidKycStatus):
		BadRequest(c, err.Error())
	default:
		InternalError(c, MsgInternalError)
	}
}

// Common message constants.
const (
	MsgInvalidRequest = "invalid request parameters"
	MsgInternalError  = "internal server error, please try again later"
)
