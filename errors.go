package authflow

import "errors"

var (
	// ErrPopupBlocked reports that the interactive popup surface was blocked
	// by the browser before the provider flow started.
	ErrPopupBlocked = errors.New("sign-in popup blocked")
	// ErrPopupClosed reports that the user closed or cancelled the popup
	// before completing the provider flow.
	ErrPopupClosed = errors.New("sign-in popup closed")
	// ErrBackendUnavailable reports that the backend session endpoint was
	// unreachable or returned a transport-level failure.
	ErrBackendUnavailable = errors.New("session backend unavailable")
	// ErrBackendRejected reports a non-2xx response from the backend
	// session endpoint.
	ErrBackendRejected = errors.New("session backend rejected request")
	// ErrMalformedResponse reports a 2xx backend response whose body could
	// not be decoded into a known shape.
	ErrMalformedResponse = errors.New("malformed session backend response")
	// ErrExchangeTimeout reports that a backend exchange exceeded its
	// configured deadline.
	ErrExchangeTimeout = errors.New("session exchange timed out")
	// ErrMFACodeInvalid reports that the backend rejected the submitted
	// TOTP or recovery code.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFAChallengeMissing reports a CompleteMFALogin call without a
	// challenge token.
	ErrMFAChallengeMissing = errors.New("mfa challenge token required")
	// ErrMFANotPending reports a CompleteMFALogin call while no MFA
	// challenge is outstanding.
	ErrMFANotPending = errors.New("no mfa challenge pending")
	// ErrNoActiveSession reports that the identity provider has no current
	// identity session.
	ErrNoActiveSession = errors.New("no active identity session")
	// ErrAuthenticationExpired reports that a forced assertion refresh
	// failed for an existing identity session.
	ErrAuthenticationExpired = errors.New("authentication expired")
	// ErrAssertionInvalid reports an identity assertion that could not be
	// parsed as a token.
	ErrAssertionInvalid = errors.New("invalid identity assertion")
	// ErrStorageUnavailable reports that persisted client storage could not
	// be accessed.
	ErrStorageUnavailable = errors.New("client storage unavailable")
	// ErrControllerClosed reports an operation on a closed Controller.
	ErrControllerClosed = errors.New("controller closed")
	// ErrControllerNotReady reports a Controller used before Build wired
	// its dependencies.
	ErrControllerNotReady = errors.New("controller not initialized")
)
