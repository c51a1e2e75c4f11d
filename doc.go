// Package authflow implements the client-side authentication session lifecycle
// for a federated sign-in flow: popup-first interactive sign-in with redirect
// fallback, an optional server-gated MFA step, session-type classification on
// restore, and coordinated token handling against a cookie-based backend
// session endpoint.
//
// The package is built around a single [Controller] constructed through
// [Builder.Build]. The Controller owns the authenticated / authenticating /
// MFA-pending / error state machine, reacts to identity-provider session
// events, and publishes immutable [Snapshot] values to registered listeners.
// Controller methods are safe to call from multiple goroutines after
// initialization.
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Controller], [Builder],
// [Config], the [IdentityProvider] capability interface, and value types
// (Snapshot, AuthenticatedUser, ErrorDescriptor). Internal coordination —
// audit dispatch and metric storage — lives under internal/ and is never
// exported.
//
// # What this package must NOT do
//
//   - Persist identity tokens, user profiles, or MFA session tokens to
//     long-lived storage. Only the enumerated safe keys (theme preference,
//     session-type marker, MFA-verified-until timestamp) are ever written.
//   - Verify assertion signatures. Assertions are opaque to the client;
//     verification is the backend session endpoint's job.
//   - Couple to any concrete identity-provider SDK. Providers integrate
//     through [IdentityProvider].
package authflow
