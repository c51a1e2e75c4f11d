package authflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SignInWithPopup asks the identity provider to open an interactive popup
// sign-in surface and exchanges the resulting assertion with the backend.
//
// A popup classified as blocked, closed, or cancelled falls back to
// [Controller.SignInWithRedirect] automatically, without surfacing an error
// snapshot in between: popup blocking is an environment condition, not a
// sign-in failure. Any other failure is published on the snapshot and
// returned.
//
// The explicit-login marker is written before the provider is invoked so
// the eventual identity event classifies correctly even when the flow spans
// a page navigation.
func (c *Controller) SignInWithPopup(ctx context.Context) error {
	if c == nil || c.provider == nil || c.backend == nil {
		return ErrControllerNotReady
	}

	c.setMarker(ctx, SessionExplicitLogin)

	assertion, err := c.provider.OpenPopup(ctx)
	if err != nil {
		if errors.Is(err, ErrPopupBlocked) || errors.Is(err, ErrPopupClosed) {
			c.metricInc(MetricPopupFallback)
			c.emitAudit(ctx, auditEventPopupFallback, true, "", "", SessionExplicitLogin, err, nil)
			return c.SignInWithRedirect(ctx)
		}
		c.publishFailure(err)
		return err
	}

	return c.processAssertion(ctx, assertion)
}

// SignInWithRedirect asks the identity provider to navigate to its sign-in
// surface. It returns before completion: the eventual assertion arrives as
// a session event after the browser returns, and is classified as a
// redirect completion at that point.
func (c *Controller) SignInWithRedirect(ctx context.Context) error {
	if c == nil || c.provider == nil {
		return ErrControllerNotReady
	}

	c.setMarker(ctx, SessionExplicitLogin)

	if err := c.provider.OpenRedirect(ctx); err != nil {
		c.publishFailure(err)
		return err
	}
	return nil
}

// processAssertion runs one tagged backend exchange for an identity
// assertion: classify the session type, post to the session endpoint, and
// apply the outcome unless a newer exchange superseded this one meanwhile.
func (c *Controller) processAssertion(ctx context.Context, assertion string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	c.exchangeGen++
	gen := c.exchangeGen
	next := c.snap
	next.IsLoading = true
	listeners, snap := c.applyLocked(next)
	c.mu.Unlock()

	c.notify(listeners, snap)

	exchangeID := uuid.NewString()

	redirectCompleted := false
	if done, err := c.provider.ConsumeRedirectResult(ctx); err == nil {
		redirectCompleted = done
	}
	sessionType := classifySessionType(ctx, c.storage, redirectCompleted)
	skipMFA := sessionType == SessionRestore && c.IsMFAVerified()

	// A stale assertion would be rejected server-side; refresh it first
	// when the exp claim is visibly in the past.
	if assertionExpired(assertion, time.Now()) {
		if fresh, err := c.provider.FreshAssertion(ctx, true); err == nil && fresh != "" {
			assertion = fresh
		}
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, c.config.Backend.ExchangeTimeout)
	defer cancel()

	result, err := c.backend.login(exchangeCtx, assertion, sessionType, skipMFA)
	return c.finishExchange(ctx, gen, exchangeID, sessionType, result, err)
}

// finishExchange applies an exchange outcome if the exchange is still the
// newest one. Superseded results are discarded: a stale
// Authenticating transition must never overwrite a newer completion.
func (c *Controller) finishExchange(
	ctx context.Context,
	gen uint64,
	exchangeID string,
	sessionType SessionType,
	result *exchangeResult,
	exchangeErr error,
) error {
	c.mu.Lock()
	if c.closed || gen != c.exchangeGen {
		c.mu.Unlock()
		c.metricInc(MetricStaleExchangeDiscarded)
		c.emitAudit(ctx, auditEventStaleExchange, false, "", exchangeID, sessionType, nil, func() map[string]string {
			return map[string]string{
				"generation": strconv.FormatUint(gen, 10),
			}
		})
		return nil
	}

	switch {
	case exchangeErr != nil:
		listeners, snap := c.applyLocked(Snapshot{Error: errorDescriptor(exchangeErr)})
		c.mu.Unlock()

		c.notify(listeners, snap)
		c.metricInc(MetricSignInFailure)
		c.emitAudit(ctx, auditEventSignInFailure, false, "", exchangeID, sessionType, exchangeErr, nil)
		return exchangeErr

	case result.MFARequired:
		listeners, snap := c.applyLocked(Snapshot{
			MFAPending:   true,
			MFAChallenge: result.MFAToken,
		})
		c.mu.Unlock()

		c.notify(listeners, snap)
		c.metricInc(MetricMFARequired)
		c.emitAudit(ctx, auditEventMFARequired, true, "", exchangeID, sessionType, nil, nil)
		return nil

	default:
		user := *result.User
		listeners, snap := c.applyLocked(Snapshot{
			User:            &user,
			IsAuthenticated: true,
		})
		c.mu.Unlock()

		c.notify(listeners, snap)
		// The next assertion event on this device is a reload of this
		// session, not a new login.
		c.setMarker(ctx, SessionRestore)
		c.metricInc(MetricSignInSuccess)
		c.emitAudit(ctx, auditEventSignInSuccess, true, user.ID, exchangeID, sessionType, nil, func() map[string]string {
			return map[string]string{
				"is_new_user": strconv.FormatBool(result.IsNewUser),
			}
		})
		return nil
	}
}

// publishFailure surfaces a non-exchange failure (interactive surface or
// provider error) on the snapshot without touching session fields beyond
// loading. An established session survives a failed re-authentication
// attempt: the error goes to the caller, never onto an authenticated
// snapshot.
func (c *Controller) publishFailure(err error) {
	c.mu.Lock()
	next := c.snap
	next.IsLoading = false
	if !next.IsAuthenticated {
		next.Error = errorDescriptor(err)
	}
	listeners, snap := c.applyLocked(next)
	c.mu.Unlock()

	c.notify(listeners, snap)
	c.metricInc(MetricSignInFailure)
}
