package authflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestSignOutClearsSession(t *testing.T) {
	provider := &fakeProvider{
		popupAssertion: testAssertion(t, "u1", time.Hour),
		freshAssertion: testAssertion(t, "u1", time.Hour),
	}
	controller, backend, storage, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	driveToMFAPending(t, controller, backend, "challenge-1")
	if err := controller.CompleteMFALogin(context.Background(), "challenge-1", "123456", false); err != nil {
		t.Fatalf("CompleteMFALogin failed: %v", err)
	}

	controller.SignOut(context.Background())

	snap := controller.Snapshot()
	if snap.IsAuthenticated || snap.User != nil || snap.MFAPending || snap.Error != nil || snap.IsLoading {
		t.Fatalf("expected zero snapshot after sign-out, got %+v", snap)
	}

	backend.mu.Lock()
	logoutCalls := backend.logoutCalls
	backend.mu.Unlock()
	if logoutCalls != 1 {
		t.Fatalf("expected one backend logout, got %d", logoutCalls)
	}
	if provider.endSessionCalls != 1 {
		t.Fatalf("expected one provider end-session, got %d", provider.endSessionCalls)
	}

	ctx := context.Background()
	if _, ok, _ := storage.Get(ctx, KeySessionTypeMarker); ok {
		t.Fatal("sign-out must clear the session-type marker")
	}
	if _, ok, _ := storage.Get(ctx, KeyMFAVerifiedUntil); ok {
		t.Fatal("sign-out must close the persisted MFA window")
	}
	if controller.IsMFAVerified() {
		t.Fatal("sign-out must close the in-memory MFA window")
	}
}

func TestSignOutSucceedsLocallyWhenRemoteCallsFail(t *testing.T) {
	provider := &fakeProvider{
		popupAssertion: testAssertion(t, "u1", time.Hour),
		endSessionErr:  errors.New("provider sign-out failed"),
	}
	controller, backend, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	if err := controller.SignInWithPopup(context.Background()); err != nil {
		t.Fatalf("SignInWithPopup failed: %v", err)
	}

	backend.setLogout(func() int { return http.StatusInternalServerError })

	controller.SignOut(context.Background())

	snap := controller.Snapshot()
	if snap.IsAuthenticated || snap.User != nil || snap.Error != nil {
		t.Fatalf("remote failures must not block local sign-out, got %+v", snap)
	}
}

func TestSignOutSupersedesInFlightExchange(t *testing.T) {
	provider := &fakeProvider{popupAssertion: testAssertion(t, "u1", time.Hour)}
	controller, backend, _, done := newTestController(t, controllerTestConfig(), provider)
	defer done()

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.setLogin(func(loginRequest) (int, any) {
		backend.mu.Lock()
		first := len(backend.loginCalls) == 1
		backend.mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		return http.StatusOK, okUserResponse("u1")
	})

	popupDone := make(chan error, 1)
	go func() {
		popupDone <- controller.SignInWithPopup(context.Background())
	}()

	<-entered
	controller.SignOut(context.Background())
	close(release)
	<-popupDone

	snap := controller.Snapshot()
	if snap.IsAuthenticated || snap.User != nil {
		t.Fatalf("an exchange finishing after sign-out must not resurrect the session, got %+v", snap)
	}
	if got := controller.MetricsSnapshot().Counters[MetricStaleExchangeDiscarded]; got != 1 {
		t.Fatalf("expected 1 stale-exchange metric, got %d", got)
	}
}
