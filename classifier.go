package authflow

import "context"

// classifySessionType decides how the current identity-assertion event is
// interpreted. It reads only the single non-sensitive persisted marker and
// the one-shot redirect-completion flag; no token or user data participates,
// so classification works before any assertion is available.
//
// A completed redirect sign-in wins over the marker: the assertion is fresh
// and must satisfy MFA like an explicit login. Otherwise the marker value
// "session_restore" classifies a reload; anything else, including a storage
// failure, degrades to an explicit login.
func classifySessionType(ctx context.Context, storage Storage, redirectCompleted bool) SessionType {
	if redirectCompleted {
		return SessionRedirectComplete
	}
	if storage == nil {
		return SessionExplicitLogin
	}

	marker, ok, err := storage.Get(ctx, KeySessionTypeMarker)
	if err != nil || !ok {
		return SessionExplicitLogin
	}
	if SessionType(marker) == SessionRestore {
		return SessionRestore
	}
	return SessionExplicitLogin
}
