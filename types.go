package authflow

import (
	"context"
	"io"

	internalaudit "github.com/pathlight/authflow/internal/audit"
	internalmetrics "github.com/pathlight/authflow/internal/metrics"
)

// SessionType classifies how the current identity-assertion event came to
// exist: an explicit user-initiated login, a page-reload restoration of an
// existing session, or the completion of a redirect-based sign-in.
type SessionType string

const (
	// SessionExplicitLogin marks a user-initiated sign-in.
	SessionExplicitLogin SessionType = "explicit_login"
	// SessionRestore marks a page-reload restoration of an existing session.
	SessionRestore SessionType = "session_restore"
	// SessionRedirectComplete marks the completion of a redirect-based
	// sign-in after the browser returned from the provider.
	SessionRedirectComplete SessionType = "redirect_complete"
)

// AuthenticatedUser is the profile returned by the backend session endpoint
// once authentication (including MFA, when required) is satisfied. It is an
// immutable value: each successful authentication replaces it wholesale.
type AuthenticatedUser struct {
	ID            string
	Email         string
	DisplayName   string
	AvatarURL     string
	EmailVerified bool
}

// ErrorKind is the normalized failure taxonomy exposed on published
// snapshots. Raw provider or backend error shapes never reach consumers.
type ErrorKind string

const (
	// KindInteractiveSurfaceBlocked marks a blocked, closed, or cancelled
	// popup. It triggers the redirect fallback and is not surfaced on a
	// snapshot.
	KindInteractiveSurfaceBlocked ErrorKind = "InteractiveSurfaceBlocked"
	// KindNetworkOrBackendFailure marks an unreachable backend, a non-2xx
	// response, or a malformed response body.
	KindNetworkOrBackendFailure ErrorKind = "NetworkOrBackendFailure"
	// KindTimeout marks a backend exchange that exceeded its deadline.
	KindTimeout ErrorKind = "Timeout"
	// KindInvalidCode marks an MFA code or recovery code the backend
	// rejected. The session stays MFA-pending so the user may retry.
	KindInvalidCode ErrorKind = "InvalidCode"
	// KindAuthenticationExpired marks a failed forced assertion refresh.
	KindAuthenticationExpired ErrorKind = "AuthenticationExpired"
	// KindStorageUnavailable marks inaccessible persisted client storage.
	KindStorageUnavailable ErrorKind = "StorageUnavailable"
)

// ErrorDescriptor is the normalized error value carried on a [Snapshot].
type ErrorDescriptor struct {
	Kind    ErrorKind
	Message string
}

// Snapshot is a read-only view of the auth session published to listeners.
// Every transition produces a new Snapshot; consumers never observe partial
// mutation.
//
// Invariants: MFAPending implies User == nil and IsAuthenticated == false;
// IsAuthenticated implies Error == nil; MFAChallenge != "" iff MFAPending.
type Snapshot struct {
	User            *AuthenticatedUser
	IsAuthenticated bool
	IsLoading       bool
	Error           *ErrorDescriptor
	MFAPending      bool
	MFAChallenge    string
}

// SessionEvent is emitted by an [IdentityProvider] whenever the identity
// session changes. Present reports whether an identity session exists;
// Assertion carries the current identity assertion when it does.
type SessionEvent struct {
	Present   bool
	Assertion string
}

// IdentityProvider is the capability interface to the federated identity
// source. Adapters to concrete provider SDKs implement it; the core state
// machine never sees a provider-specific API shape.
//
// OpenPopup opens an interactive popup sign-in surface and returns the
// resulting assertion. A blocked, closed, or cancelled surface is reported
// as [ErrPopupBlocked] or [ErrPopupClosed]. OpenRedirect navigates away to
// the provider and returns before completion; the eventual assertion arrives
// as a [SessionEvent] after the browser returns. FreshAssertion returns the
// current assertion, forcing a refresh when force is true, or
// [ErrNoActiveSession]. ConsumeRedirectResult reports whether a
// redirect-based sign-in just completed; the check is one-shot.
// Subscribe registers a session-event handler and returns an unsubscribe
// function. EndSession signs out of the identity session.
type IdentityProvider interface {
	OpenPopup(ctx context.Context) (string, error)
	OpenRedirect(ctx context.Context) error
	FreshAssertion(ctx context.Context, force bool) (string, error)
	ConsumeRedirectResult(ctx context.Context) (bool, error)
	Subscribe(handler func(SessionEvent)) (unsubscribe func())
	EndSession(ctx context.Context) error
}

// CleanupReport summarizes one run of the legacy-storage scrub: the
// sensitive keys that were removed and any keys outside both the sensitive
// and safe lists, reported for diagnostics but left untouched.
type CleanupReport struct {
	Removed []string
	Unknown []string
}

// AuditEvent is a structured audit record emitted by the controller.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the controller's audit
// dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricSignInSuccess counts exchanges that ended in Authenticated.
	MetricSignInSuccess = MetricID(internalmetrics.MetricSignInSuccess)
	// MetricSignInFailure counts exchanges that ended in an error snapshot.
	MetricSignInFailure = MetricID(internalmetrics.MetricSignInFailure)
	// MetricPopupFallback counts popup sign-ins that fell back to redirect.
	MetricPopupFallback = MetricID(internalmetrics.MetricPopupFallback)
	// MetricMFARequired counts exchanges answered with an MFA challenge.
	MetricMFARequired = MetricID(internalmetrics.MetricMFARequired)
	// MetricMFASuccess counts completed MFA verifications.
	MetricMFASuccess = MetricID(internalmetrics.MetricMFASuccess)
	// MetricMFAFailure counts rejected MFA verifications.
	MetricMFAFailure = MetricID(internalmetrics.MetricMFAFailure)
	// MetricSignOut counts sign-out operations.
	MetricSignOut = MetricID(internalmetrics.MetricSignOut)
	// MetricTokenRefreshSuccess counts successful forced assertion
	// refreshes.
	MetricTokenRefreshSuccess = MetricID(internalmetrics.MetricTokenRefreshSuccess)
	// MetricTokenRefreshFailure counts failed forced assertion refreshes.
	MetricTokenRefreshFailure = MetricID(internalmetrics.MetricTokenRefreshFailure)
	// MetricStaleExchangeDiscarded counts exchange results discarded
	// because a newer exchange superseded them.
	MetricStaleExchangeDiscarded = MetricID(internalmetrics.MetricStaleExchangeDiscarded)
	// MetricCleanupKeyRemoved counts sensitive legacy keys removed by the
	// startup scrub.
	MetricCleanupKeyRemoved = MetricID(internalmetrics.MetricCleanupKeyRemoved)
	// MetricStorageError counts persisted-storage access failures.
	MetricStorageError = MetricID(internalmetrics.MetricStorageError)
	// MetricListenerNotify counts listener notifications dispatched.
	MetricListenerNotify = MetricID(internalmetrics.MetricListenerNotify)
)

// Metrics holds atomic counters for controller observability.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled: cfg.Enabled,
	})
}
