package authflow

import (
	"context"
	"strconv"
	"time"
)

// SignOut ends the session from every vantage the client controls: it
// notifies the backend, signs out of the identity provider, clears the
// non-sensitive persisted markers, and publishes an Unauthenticated
// snapshot. Sign-out always succeeds locally; the backend notification and
// provider sign-out are best-effort, and their failures are recorded in the
// audit stream rather than surfaced to the caller.
func (c *Controller) SignOut(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// Supersede any in-flight exchange; its result must not resurrect the
	// session after sign-out.
	c.exchangeGen++
	wasAuthenticated := c.snap.IsAuthenticated
	wasMFAPending := c.snap.MFAPending
	userID := ""
	if c.snap.User != nil {
		userID = c.snap.User.ID
	}
	c.mfaVerifiedUntil = time.Time{}
	listeners, snap := c.applyLocked(Snapshot{})
	c.mu.Unlock()

	c.notify(listeners, snap)

	if c.backend != nil {
		logoutCtx, cancel := context.WithTimeout(ctx, c.config.Backend.LogoutTimeout)
		if err := c.backend.logout(logoutCtx); err != nil {
			c.emitAudit(ctx, auditEventSignOut, false, userID, "", "", err, func() map[string]string {
				return map[string]string{
					"stage": "backend_logout",
				}
			})
		}
		cancel()
	}

	if c.provider != nil {
		if err := c.provider.EndSession(ctx); err != nil {
			c.emitAudit(ctx, auditEventSignOut, false, userID, "", "", err, func() map[string]string {
				return map[string]string{
					"stage": "provider_end_session",
				}
			})
		}
	}

	c.clearMarker(ctx)
	if c.storage != nil {
		if err := c.storage.Delete(ctx, KeyMFAVerifiedUntil); err != nil {
			c.metricInc(MetricStorageError)
			c.emitAudit(ctx, auditEventStorageError, false, userID, "", "", err, nil)
		}
	}

	c.metricInc(MetricSignOut)
	c.emitAudit(ctx, auditEventSignOut, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"was_authenticated": strconv.FormatBool(wasAuthenticated),
			"was_mfa_pending":   strconv.FormatBool(wasMFAPending),
		}
	})
}
