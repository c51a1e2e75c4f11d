package authflow

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	internalaudit "github.com/pathlight/authflow/internal/audit"
)

// Controller owns the client-side authentication session: a process-wide
// singleton state machine spanning Initializing, Unauthenticated,
// Authenticating, MfaPending, and Authenticated, with the last error carried
// as a modifier on any non-Authenticated state.
//
// All state lives behind a single mutex and is exposed only as immutable
// [Snapshot] values. Each in-flight backend exchange is tagged with a
// monotonically increasing generation; a result arriving after a newer
// exchange started is discarded instead of applied, so the popup-fallback /
// late-redirect race cannot corrupt state.
//
// Controller defines a public type used by authflow APIs.
//
// Controller instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Controller struct {
	config   Config
	provider IdentityProvider
	backend  *backendClient
	storage  Storage
	audit    *internalaudit.Dispatcher
	metrics  *Metrics

	mu               sync.Mutex
	snap             Snapshot
	listeners        []listenerEntry
	nextListenerID   uint64
	exchangeGen      uint64
	mfaVerifiedUntil time.Time
	unsubscribe      func()
	closed           bool
}

type listenerEntry struct {
	id uint64
	fn func(Snapshot)
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Controller) Close() {
	if c == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.exchangeGen++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.listeners = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Controller) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Controller) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// Snapshot returns the current published state without subscribing.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// OnStateChange registers a state listener. The listener is invoked once
// synchronously with the current snapshot before OnStateChange returns, so
// late subscribers never miss the initial state. Listeners are notified in
// registration order; a panicking listener does not prevent the others from
// being notified. The returned function unsubscribes.
func (c *Controller) OnStateChange(listener func(Snapshot)) func() {
	if c == nil || listener == nil {
		return func() {}
	}

	c.mu.Lock()
	c.nextListenerID++
	id := c.nextListenerID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: listener})
	current := c.snap
	c.mu.Unlock()

	c.invokeListener(listener, current)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, entry := range c.listeners {
			if entry.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// ClearError removes the published error. Calling it when no error is
// present is a no-op and notifies no listener.
func (c *Controller) ClearError() {
	c.mu.Lock()
	if c.snap.Error == nil {
		c.mu.Unlock()
		return
	}
	next := c.snap
	next.Error = nil
	listeners, snap := c.applyLocked(next)
	c.mu.Unlock()

	c.notify(listeners, snap)
}

// IsMFAVerified reports whether a completed MFA verification is still
// inside the configured re-prompt suppression window.
func (c *Controller) IsMFAVerified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mfaVerifiedLocked(time.Now())
}

func (c *Controller) mfaVerifiedLocked(now time.Time) bool {
	return !c.mfaVerifiedUntil.IsZero() && now.Before(c.mfaVerifiedUntil)
}

// applyLocked installs next as the published snapshot and returns the
// listener set to notify. Caller holds c.mu. An unchanged snapshot
// produces no notification.
func (c *Controller) applyLocked(next Snapshot) ([]listenerEntry, Snapshot) {
	if snapshotEqual(c.snap, next) {
		return nil, next
	}
	c.snap = next
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	return listeners, next
}

func (c *Controller) notify(listeners []listenerEntry, snap Snapshot) {
	for _, entry := range listeners {
		c.invokeListener(entry.fn, snap)
	}
}

func (c *Controller) invokeListener(fn func(Snapshot), snap Snapshot) {
	defer func() {
		// A listener panic must not take down the controller or starve
		// the listeners registered after it.
		_ = recover()
	}()
	c.metricInc(MetricListenerNotify)
	fn(snap)
}

func snapshotEqual(a, b Snapshot) bool {
	if a.IsAuthenticated != b.IsAuthenticated ||
		a.IsLoading != b.IsLoading ||
		a.MFAPending != b.MFAPending ||
		a.MFAChallenge != b.MFAChallenge {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	if a.User != nil && *a.User != *b.User {
		return false
	}
	if (a.Error == nil) != (b.Error == nil) {
		return false
	}
	if a.Error != nil && *a.Error != *b.Error {
		return false
	}
	return true
}

// handleSessionEvent is the identity-provider subscription callback. Events
// are applied in emission order; a "session present" event starts a tagged
// backend exchange, a "session ended" event supersedes any in-flight
// exchange and clears the session.
func (c *Controller) handleSessionEvent(event SessionEvent) {
	ctx := context.Background()
	if !event.Present {
		c.applySessionEnded(ctx)
		return
	}
	_ = c.processAssertion(ctx, event.Assertion)
}

func (c *Controller) applySessionEnded(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.exchangeGen++
	wasAuthenticated := c.snap.IsAuthenticated
	listeners, snap := c.applyLocked(Snapshot{})
	c.mu.Unlock()

	c.notify(listeners, snap)
	c.clearMarker(ctx)
	c.emitAudit(ctx, auditEventSessionEnded, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"was_authenticated": strconv.FormatBool(wasAuthenticated),
		}
	})
}

// errorDescriptor normalizes an internal error into the published taxonomy.
// Raw provider and backend error shapes never reach consumers.
func errorDescriptor(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}

	kind := KindNetworkOrBackendFailure
	switch {
	case errors.Is(err, ErrPopupBlocked), errors.Is(err, ErrPopupClosed):
		kind = KindInteractiveSurfaceBlocked
	case errors.Is(err, ErrExchangeTimeout):
		kind = KindTimeout
	case errors.Is(err, ErrMFACodeInvalid), errors.Is(err, ErrMFAChallengeMissing), errors.Is(err, ErrMFANotPending):
		kind = KindInvalidCode
	case errors.Is(err, ErrAuthenticationExpired), errors.Is(err, ErrNoActiveSession):
		kind = KindAuthenticationExpired
	case errors.Is(err, ErrStorageUnavailable):
		kind = KindStorageUnavailable
	}
	return &ErrorDescriptor{Kind: kind, Message: err.Error()}
}

// setMarker persists the session-type marker. Marker writes are best-effort:
// storage being unavailable degrades classification, it never blocks auth.
func (c *Controller) setMarker(ctx context.Context, sessionType SessionType) {
	if c.storage == nil {
		return
	}
	if err := c.storage.Set(ctx, KeySessionTypeMarker, string(sessionType)); err != nil {
		c.metricInc(MetricStorageError)
		c.emitAudit(ctx, auditEventStorageError, false, "", "", sessionType, err, nil)
	}
}

func (c *Controller) clearMarker(ctx context.Context) {
	if c.storage == nil {
		return
	}
	if err := c.storage.Delete(ctx, KeySessionTypeMarker); err != nil {
		c.metricInc(MetricStorageError)
		c.emitAudit(ctx, auditEventStorageError, false, "", "", "", err, nil)
	}
}
