package authflow

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignInSuccess  = "sign_in_success"
	auditEventSignInFailure  = "sign_in_failure"
	auditEventPopupFallback  = "popup_fallback"
	auditEventMFARequired    = "mfa_required"
	auditEventMFASuccess     = "mfa_success"
	auditEventMFAFailure     = "mfa_failure"
	auditEventSignOut        = "sign_out"
	auditEventSessionEnded   = "session_ended"
	auditEventStaleExchange  = "stale_exchange_discarded"
	auditEventTokenRefreshed = "token_refreshed"
	auditEventTokenExpired   = "token_refresh_failed"
	auditEventStorageCleanup = "storage_cleanup"
	auditEventStorageError   = "storage_error"
)

// AuditErrorCode defines a public type used by authflow APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrPopupBlocked       AuditErrorCode = "popup_blocked"
	auditErrBackendRejected    AuditErrorCode = "backend_rejected"
	auditErrBackendUnavailable AuditErrorCode = "backend_unavailable"
	auditErrMalformedResponse  AuditErrorCode = "malformed_response"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMFANotPending      AuditErrorCode = "mfa_not_pending"
	auditErrAuthExpired        AuditErrorCode = "authentication_expired"
	auditErrNoSession          AuditErrorCode = "no_active_session"
	auditErrStorage            AuditErrorCode = "storage_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Controller) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	exchangeID string,
	sessionType SessionType,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		UserID:      userID,
		ExchangeID:  exchangeID,
		SessionType: string(sessionType),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrPopupBlocked),
		errors.Is(err, ErrPopupClosed):
		return auditErrPopupBlocked
	case errors.Is(err, ErrExchangeTimeout):
		return auditErrTimeout
	case errors.Is(err, ErrMFACodeInvalid),
		errors.Is(err, ErrMFAChallengeMissing):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFANotPending):
		return auditErrMFANotPending
	case errors.Is(err, ErrBackendRejected):
		return auditErrBackendRejected
	case errors.Is(err, ErrMalformedResponse):
		return auditErrMalformedResponse
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrBackendUnavailable
	case errors.Is(err, ErrAuthenticationExpired):
		return auditErrAuthExpired
	case errors.Is(err, ErrNoActiveSession):
		return auditErrNoSession
	case errors.Is(err, ErrStorageUnavailable):
		return auditErrStorage
	default:
		return auditErrInternal
	}
}
