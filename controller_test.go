package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOnStateChangeReplaysCurrentSnapshot(t *testing.T) {
	provider := &fakeProvider{popupAssertion: testAssertion(t, "u1", time.Hour)}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	if err := controller.SignInWithPopup(context.Background()); err != nil {
		t.Fatalf("SignInWithPopup failed: %v", err)
	}

	// A subscriber arriving after the state settled must still see it
	// immediately, before OnStateChange returns.
	var replayed *Snapshot
	controller.OnStateChange(func(snap Snapshot) {
		if replayed == nil {
			replayed = &snap
		}
	})

	if replayed == nil {
		t.Fatal("listener was not invoked synchronously on registration")
	}
	if !replayed.IsAuthenticated || replayed.User == nil || replayed.User.ID != "u1" {
		t.Fatalf("late subscriber saw the wrong snapshot: %+v", replayed)
	}
}

func TestListenersNotifiedInRegistrationOrder(t *testing.T) {
	provider := &fakeProvider{popupAssertion: testAssertion(t, "u1", time.Hour)}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	var order []string
	controller.OnStateChange(func(Snapshot) { order = append(order, "a") })
	controller.OnStateChange(func(Snapshot) { order = append(order, "b") })
	order = order[:0]

	if err := controller.SignInWithPopup(context.Background()); err != nil {
		t.Fatalf("SignInWithPopup failed: %v", err)
	}

	for i := 0; i+1 < len(order); i += 2 {
		if order[i] != "a" || order[i+1] != "b" {
			t.Fatalf("listeners out of registration order: %v", order)
		}
	}
	if len(order) == 0 || len(order)%2 != 0 {
		t.Fatalf("expected paired notifications, got %v", order)
	}
}

func TestPanickingListenerDoesNotStarveOthers(t *testing.T) {
	provider := &fakeProvider{popupAssertion: testAssertion(t, "u1", time.Hour)}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	controller.OnStateChange(func(Snapshot) { panic("listener bug") })
	second := &snapshotRecorder{}
	controller.OnStateChange(second.listen)
	before := second.count()

	if err := controller.SignInWithPopup(context.Background()); err != nil {
		t.Fatalf("SignInWithPopup failed: %v", err)
	}

	if second.count() <= before {
		t.Fatal("listener registered after the panicking one was never notified")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	provider := &fakeProvider{popupAssertion: testAssertion(t, "u1", time.Hour)}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	recorder := &snapshotRecorder{}
	unsubscribe := controller.OnStateChange(recorder.listen)
	unsubscribe()
	after := recorder.count()

	if err := controller.SignInWithPopup(context.Background()); err != nil {
		t.Fatalf("SignInWithPopup failed: %v", err)
	}
	if recorder.count() != after {
		t.Fatal("unsubscribed listener was still notified")
	}
}

func TestClearError(t *testing.T) {
	cause := errors.New("provider unreachable")
	provider := &fakeProvider{popupErr: cause}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	_ = controller.SignInWithPopup(context.Background())
	if controller.Snapshot().Error == nil {
		t.Fatal("expected a published error")
	}

	recorder := &snapshotRecorder{}
	controller.OnStateChange(recorder.listen)
	base := recorder.count()

	controller.ClearError()
	if controller.Snapshot().Error != nil {
		t.Fatal("ClearError left the error in place")
	}
	if recorder.count() != base+1 {
		t.Fatalf("expected one notification for the clear, got %d", recorder.count()-base)
	}

	// Clearing in a no-error state is a no-op and must notify nobody.
	controller.ClearError()
	if recorder.count() != base+1 {
		t.Fatal("ClearError notified listeners despite no change")
	}
}

func TestCurrentToken(t *testing.T) {
	fresh := testAssertion(t, "u1", time.Hour)
	provider := &fakeProvider{freshAssertion: fresh}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	token, err := controller.CurrentToken(context.Background())
	if err != nil {
		t.Fatalf("CurrentToken failed: %v", err)
	}
	if token != fresh {
		t.Fatal("expected the provider's freshly minted assertion")
	}
	if provider.forcedCalls != 1 {
		t.Fatalf("refresh must always be forced, forced=%d", provider.forcedCalls)
	}
}

func TestCurrentTokenNoSession(t *testing.T) {
	provider := &fakeProvider{freshErr: ErrNoActiveSession}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	if _, err := controller.CurrentToken(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	// Absence of a session is not an expiry; no error is published.
	if controller.Snapshot().Error != nil {
		t.Fatalf("unexpected published error: %+v", controller.Snapshot().Error)
	}
}

func TestCurrentTokenRefreshFailureExpiresSession(t *testing.T) {
	provider := &fakeProvider{
		popupAssertion: testAssertion(t, "u1", time.Hour),
	}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	if err := controller.SignInWithPopup(context.Background()); err != nil {
		t.Fatalf("SignInWithPopup failed: %v", err)
	}

	provider.mu.Lock()
	provider.freshErr = errors.New("refresh token revoked")
	provider.mu.Unlock()

	_, err := controller.CurrentToken(context.Background())
	if !errors.Is(err, ErrAuthenticationExpired) {
		t.Fatalf("expected ErrAuthenticationExpired, got %v", err)
	}

	snap := controller.Snapshot()
	if snap.IsAuthenticated || snap.User != nil {
		t.Fatalf("an unusable authentication must not stay published, got %+v", snap)
	}
	if snap.Error == nil || snap.Error.Kind != KindAuthenticationExpired {
		t.Fatalf("expected AuthenticationExpired descriptor, got %+v", snap.Error)
	}
}

func TestCloseIsIdempotentAndStopsUse(t *testing.T) {
	provider := &fakeProvider{popupAssertion: testAssertion(t, "u1", time.Hour)}
	controller, _, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	controller.Close()
	controller.Close()

	if err := controller.SignInWithPopup(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
}
