package authflow

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// CompleteMFALogin exchanges an outstanding MFA challenge plus a code for
// an authenticated session. code is either a numeric TOTP code or a
// recovery code, selected by isRecoveryCode.
//
// A rejected code publishes an InvalidCode error and leaves the session
// MFA-pending with the challenge intact, so the user retries without
// restarting sign-in. On success the session becomes Authenticated and the
// MFA-verified window opens: session restores inside the window skip the
// MFA re-prompt.
func (c *Controller) CompleteMFALogin(ctx context.Context, challengeToken, code string, isRecoveryCode bool) error {
	if c == nil || c.provider == nil || c.backend == nil {
		return ErrControllerNotReady
	}
	if challengeToken == "" {
		return ErrMFAChallengeMissing
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if !c.snap.MFAPending {
		c.mu.Unlock()
		return ErrMFANotPending
	}
	c.mu.Unlock()

	// Reject malformed codes locally; the challenge is not consumed.
	if !validMFACode(code, isRecoveryCode, c.config.MFA) {
		return c.failMFAAttempt(ctx, "", ErrMFACodeInvalid)
	}

	c.mu.Lock()
	if c.closed || !c.snap.MFAPending {
		c.mu.Unlock()
		return ErrMFANotPending
	}
	c.exchangeGen++
	gen := c.exchangeGen
	next := c.snap
	next.IsLoading = true
	listeners, snap := c.applyLocked(next)
	c.mu.Unlock()

	c.notify(listeners, snap)

	exchangeID := uuid.NewString()

	// The completion endpoint correlates the challenge with the assertion
	// that produced it.
	idToken, err := c.provider.FreshAssertion(ctx, false)
	if err != nil {
		return c.failMFAAttempt(ctx, exchangeID, err)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, c.config.Backend.ExchangeTimeout)
	defer cancel()

	result, err := c.backend.confirmMFA(exchangeCtx, challengeToken, code, isRecoveryCode, idToken)
	if err != nil {
		return c.failMFAAttempt(ctx, exchangeID, err)
	}

	now := time.Now()
	verifiedUntil := now.Add(c.config.MFA.VerifiedWindow)
	user := *result.User

	c.mu.Lock()
	if c.closed || gen != c.exchangeGen {
		c.mu.Unlock()
		c.metricInc(MetricStaleExchangeDiscarded)
		c.emitAudit(ctx, auditEventStaleExchange, false, user.ID, exchangeID, "", nil, nil)
		return nil
	}
	c.mfaVerifiedUntil = verifiedUntil
	// Challenge token is single-use: discard it the moment MFA completes.
	listeners, snap = c.applyLocked(Snapshot{
		User:            &user,
		IsAuthenticated: true,
	})
	c.mu.Unlock()

	c.notify(listeners, snap)
	c.setMarker(ctx, SessionRestore)
	c.persistMFAVerifiedUntil(ctx, verifiedUntil)
	c.metricInc(MetricMFASuccess)
	c.emitAudit(ctx, auditEventMFASuccess, true, user.ID, exchangeID, "", nil, func() map[string]string {
		return map[string]string{
			"recovery_code": strconv.FormatBool(isRecoveryCode),
		}
	})
	return nil
}

// failMFAAttempt publishes the failure and keeps the session MFA-pending:
// the challenge stays valid for a retry.
func (c *Controller) failMFAAttempt(ctx context.Context, exchangeID string, cause error) error {
	c.mu.Lock()
	next := c.snap
	next.IsLoading = false
	next.Error = errorDescriptor(cause)
	listeners, snap := c.applyLocked(next)
	c.mu.Unlock()

	c.notify(listeners, snap)
	c.metricInc(MetricMFAFailure)
	c.emitAudit(ctx, auditEventMFAFailure, false, "", exchangeID, "", cause, nil)
	return cause
}

func validMFACode(code string, isRecoveryCode bool, cfg MFAConfig) bool {
	if isRecoveryCode {
		return len(code) == cfg.RecoveryCodeLength
	}
	if len(code) != cfg.TOTPDigits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// persistMFAVerifiedUntil stores the window end as a unix-seconds
// timestamp. Only the timestamp is persisted, never a token.
func (c *Controller) persistMFAVerifiedUntil(ctx context.Context, until time.Time) {
	if c.storage == nil {
		return
	}
	value := strconv.FormatInt(until.Unix(), 10)
	if err := c.storage.Set(ctx, KeyMFAVerifiedUntil, value); err != nil {
		c.metricInc(MetricStorageError)
		c.emitAudit(ctx, auditEventStorageError, false, "", "", "", err, nil)
	}
}

// loadMFAVerifiedUntil restores the window from storage at startup. Parse
// or storage failures leave the window closed.
func loadMFAVerifiedUntil(ctx context.Context, storage Storage) time.Time {
	if storage == nil {
		return time.Time{}
	}
	value, ok, err := storage.Get(ctx, KeyMFAVerifiedUntil)
	if err != nil || !ok {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
