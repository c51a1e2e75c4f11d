package authflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testAssertion(t *testing.T, subject string, ttl time.Duration) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   subject,
		"email": subject + "@example.com",
		"exp":   time.Now().Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("mint assertion failed: %v", err)
	}
	return token
}

// fakeProvider is a scriptable IdentityProvider for controller tests.
type fakeProvider struct {
	mu sync.Mutex

	popupAssertion string
	popupErr       error
	popupCalls     int

	redirectErr   error
	redirectCalls int

	freshAssertion string
	freshErr       error
	freshCalls     int
	forcedCalls    int

	redirectCompleted bool

	endSessionErr   error
	endSessionCalls int

	handlers []func(SessionEvent)
}

func (p *fakeProvider) OpenPopup(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.popupCalls++
	if p.popupErr != nil {
		return "", p.popupErr
	}
	return p.popupAssertion, nil
}

func (p *fakeProvider) OpenRedirect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirectCalls++
	return p.redirectErr
}

func (p *fakeProvider) FreshAssertion(_ context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freshCalls++
	if force {
		p.forcedCalls++
	}
	if p.freshErr != nil {
		return "", p.freshErr
	}
	return p.freshAssertion, nil
}

func (p *fakeProvider) ConsumeRedirectResult(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := p.redirectCompleted
	p.redirectCompleted = false
	return done, nil
}

func (p *fakeProvider) Subscribe(handler func(SessionEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
	return func() {}
}

func (p *fakeProvider) EndSession(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endSessionCalls++
	return p.endSessionErr
}

// emit delivers a session event to every subscribed handler, synchronously,
// the way a provider SDK invokes its auth-state callback.
func (p *fakeProvider) emit(event SessionEvent) {
	p.mu.Lock()
	handlers := make([]func(SessionEvent), len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// scriptedBackend is a scriptable backend session endpoint.
type scriptedBackend struct {
	mu sync.Mutex

	loginFn  func(loginRequest) (int, any)
	mfaFn    func(mfaRequest) (int, any)
	logoutFn func() int

	loginCalls  []loginRequest
	mfaCalls    []mfaRequest
	logoutCalls int
}

func (b *scriptedBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		b.loginCalls = append(b.loginCalls, req)
		fn := b.loginFn
		b.mu.Unlock()

		if fn == nil {
			writeTestJSON(w, http.StatusOK, okUserResponse("u1"))
			return
		}
		status, body := fn(req)
		writeTestJSON(w, status, body)
	})
	mux.HandleFunc("POST /auth/login/mfa", func(w http.ResponseWriter, r *http.Request) {
		var req mfaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		b.mu.Lock()
		b.mfaCalls = append(b.mfaCalls, req)
		fn := b.mfaFn
		b.mu.Unlock()

		if fn == nil {
			writeTestJSON(w, http.StatusOK, okUserResponse("u1"))
			return
		}
		status, body := fn(req)
		writeTestJSON(w, status, body)
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		b.logoutCalls++
		fn := b.logoutFn
		b.mu.Unlock()

		status := http.StatusNoContent
		if fn != nil {
			status = fn()
		}
		w.WriteHeader(status)
	})
	return mux
}

func (b *scriptedBackend) setLogin(fn func(loginRequest) (int, any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginFn = fn
}

func (b *scriptedBackend) setMFA(fn func(mfaRequest) (int, any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mfaFn = fn
}

func (b *scriptedBackend) setLogout(fn func() int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutFn = fn
}

func (b *scriptedBackend) lastLogin(t *testing.T) loginRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.loginCalls) == 0 {
		t.Fatal("expected at least one login call")
	}
	return b.loginCalls[len(b.loginCalls)-1]
}

func okUserResponse(uid string) map[string]any {
	return map[string]any{
		"user": map[string]any{
			"uid":    uid,
			"email":  "a@b.com",
			"name":   "Alice",
			"avatar": "",
		},
		"isNewUser": false,
	}
}

func mfaChallengeResponse(token string) map[string]any {
	return map[string]any{
		"mfa_required": true,
		"mfa_token":    token,
	}
}

func decodeTestJSON(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Errorf("decode request: %v", err)
	}
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func newBackendServer(t *testing.T, backend *scriptedBackend) *httptest.Server {
	t.Helper()
	return httptest.NewServer(backend.handler())
}

func seedMFAVerifiedUntil(t *testing.T, storage Storage, until time.Time) {
	t.Helper()
	if err := storage.Set(context.Background(), KeyMFAVerifiedUntil, strconv.FormatInt(until.Unix(), 10)); err != nil {
		t.Fatalf("seed mfa window: %v", err)
	}
}

func controllerTestConfig() Config {
	cfg := defaultConfig()
	cfg.Backend.ExchangeTimeout = 2 * time.Second
	cfg.Backend.LogoutTimeout = time.Second
	return cfg
}

// newTestController wires a controller against a fake provider, a scripted
// backend behind httptest, and in-memory storage.
func newTestController(t *testing.T, cfg Config, provider *fakeProvider) (*Controller, *scriptedBackend, *MemoryStorage, func()) {
	t.Helper()

	backend := &scriptedBackend{}
	server := httptest.NewServer(backend.handler())
	cfg.Backend.BaseURL = server.URL

	storage := NewMemoryStorage()

	controller, err := New().
		WithConfig(cfg).
		WithIdentityProvider(provider).
		WithStorage(storage).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		server.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return controller, backend, storage, func() {
		controller.Close()
		server.Close()
	}
}

// snapshotRecorder collects every snapshot a listener observes.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) listen(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *snapshotRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}
