package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to clients. The redirect path uses them as the
// `?error=` reason codes on error-page redirects, so each one must stay
// distinct: the edge layer renders a different page per code.
const (
	CodeValidation            = "validation_error"
	CodeDuplicateDomain       = "duplicate_domain"
	CodeQuotaExceeded         = "quota_exceeded"
	CodeRateLimited           = "rate_limited"
	CodeReservationExpired    = "reservation_expired"
	CodeDNSVerificationFailed = "dns_verification_failed"
	CodeSslProvisioningFailed = "ssl_provisioning_failed"
	CodeSslLimitReached       = "ssl_limit_reached"
	CodeNotFound              = "not_found"
	CodeLinkExpired           = "link_expired"
	CodeLinkInactive          = "link_inactive"
	CodeLinkClickLimit        = "link_click_limit_reached"
	CodePasswordRequired      = "password_required"
	CodeUnauthorized          = "unauthorized"
)

type CodedError struct {
	Code    string
	Status  int
	Message string
}

func (e *CodedError) Error() string {
	return e.Message
}

// Is lets errors.Is match two coded errors by code alone.
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func coded(code string, status int, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(format string, args ...interface{}) *CodedError {
	return coded(CodeValidation, http.StatusUnprocessableEntity, format, args...)
}

func NewDuplicateDomainError(name string) *CodedError {
	return coded(CodeDuplicateDomain, http.StatusConflict, "domain %s is already taken", name)
}

// NewQuotaExceededError names the plan so the message tells the user where
// the cap comes from.
func NewQuotaExceededError(planID string, maxDomains int) *CodedError {
	return coded(CodeQuotaExceeded, http.StatusForbidden, "plan %s allows at most %d verified domains", planID, maxDomains)
}

func NewRateLimitedError(action string) *CodedError {
	return coded(CodeRateLimited, http.StatusTooManyRequests, "too many %s attempts, try again later", action)
}

func NewReservationExpiredError(name string) *CodedError {
	return coded(CodeReservationExpired, http.StatusGone, "reservation for %s has expired, reserve it again", name)
}

func NewUnauthorizedError() *CodedError {
	return coded(CodeUnauthorized, http.StatusForbidden, "requester does not own this domain")
}

func NewNotFoundError(what string) *CodedError {
	return coded(CodeNotFound, http.StatusNotFound, "%s not found", what)
}

// Redirect-path outcomes. These never reach the caller as JSON: the
// redirect handler turns them into error-page redirects keyed by Code.
var (
	ErrLinkExpired      = coded(CodeLinkExpired, http.StatusGone, "link has expired")
	ErrLinkInactive     = coded(CodeLinkInactive, http.StatusGone, "link is deactivated")
	ErrLinkClickLimit   = coded(CodeLinkClickLimit, http.StatusGone, "link click limit reached")
	ErrPasswordRequired = coded(CodePasswordRequired, http.StatusUnauthorized, "link requires a password")
)

// AsCoded unwraps err into a CodedError, defaulting to an opaque 500 so
// internal failures never leak detail through the API boundary.
func AsCoded(err error) *CodedError {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	return &CodedError{Code: "internal_error", Status: http.StatusInternalServerError, Message: "internal error"}
}
