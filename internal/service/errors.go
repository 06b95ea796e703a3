package service

import (
	"fmt"
	"net/http"
	"time"
)

// Error is a stable, client-facing failure code. These are expected
// outcomes, never process-fatal; handlers map them straight to JSON.
type Error struct {
	Code   string
	Status int
}

func (e *Error) Error() string { return e.Code }

var (
	ErrMissingRefresh       = &Error{Code: "missing_refresh", Status: http.StatusBadRequest}
	ErrRefreshInvalid       = &Error{Code: "refresh_invalid", Status: http.StatusUnauthorized}
	ErrRefreshReuse         = &Error{Code: "refresh_reuse", Status: http.StatusUnauthorized}
	ErrRefreshExpired       = &Error{Code: "refresh_expired", Status: http.StatusUnauthorized}
	ErrRefreshMaxLifetime   = &Error{Code: "refresh_max_lifetime_exceeded", Status: http.StatusUnauthorized}
	ErrRateLimited          = &Error{Code: "refresh_rate_limited", Status: http.StatusTooManyRequests}
	ErrForbiddenTenant      = &Error{Code: "refresh_forbidden_tenant", Status: http.StatusForbidden}
	ErrTokenVersionMismatch = &Error{Code: "token_version_mismatch", Status: http.StatusUnauthorized}
	ErrInvalidCredentials   = &Error{Code: "invalid_credentials", Status: http.StatusUnauthorized}
	ErrEmailTaken           = &Error{Code: "email_taken", Status: http.StatusConflict}
	ErrMagicInvalid         = &Error{Code: "magic_invalid", Status: http.StatusUnauthorized}
)

// RateLimitedError carries the retry-after hint alongside the stable code.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s (retry in %s)", ErrRateLimited.Code, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
