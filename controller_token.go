package authflow

import (
	"context"
	"errors"
	"fmt"
)

// CurrentToken returns a freshly refreshed identity assertion for use by
// other subsystems' authenticated calls. The refresh is always forced: a
// stale cached assertion would fail downstream validity checks, so callers
// retrying a 401 get a token the provider just re-minted.
//
// [ErrNoActiveSession] is returned when no identity session exists. Any
// other refresh failure means the authentication is no longer usable: the
// controller transitions to Unauthenticated with an AuthenticationExpired
// error and returns [ErrAuthenticationExpired].
func (c *Controller) CurrentToken(ctx context.Context) (string, error) {
	if c == nil || c.provider == nil {
		return "", ErrControllerNotReady
	}

	token, err := c.provider.FreshAssertion(ctx, true)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return "", ErrNoActiveSession
		}

		c.metricInc(MetricTokenRefreshFailure)
		expired := fmt.Errorf("%w: %v", ErrAuthenticationExpired, err)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return "", expired
		}
		c.exchangeGen++
		listeners, snap := c.applyLocked(Snapshot{Error: errorDescriptor(expired)})
		c.mu.Unlock()

		c.notify(listeners, snap)
		c.emitAudit(ctx, auditEventTokenExpired, false, "", "", "", expired, nil)
		return "", expired
	}

	c.metricInc(MetricTokenRefreshSuccess)
	c.emitAudit(ctx, auditEventTokenRefreshed, true, "", "", "", nil, nil)
	return token, nil
}
