package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
)

// backendUser is the wire shape of the authenticated profile returned by
// the session endpoint.
type backendUser struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar"`
	EmailVerified bool   `json:"emailVerified"`
}

type loginRequest struct {
	IDToken     string `json:"idToken"`
	SessionType string `json:"sessionType"`
	SkipMFA     bool   `json:"skipMFA"`
}

type loginResponse struct {
	User        *backendUser `json:"user"`
	IsNewUser   bool         `json:"isNewUser"`
	MFARequired bool         `json:"mfa_required"`
	MFAToken    string       `json:"mfa_token"`
}

type mfaRequest struct {
	MFAToken       string `json:"mfa_token"`
	Code           string `json:"code"`
	IsRecoveryCode bool   `json:"is_recovery_code"`
	IDToken        string `json:"idToken"`
}

type backendError struct {
	Error string `json:"error"`
}

// exchangeResult is the normalized outcome of a login or MFA-completion
// exchange: either an authenticated profile or an MFA challenge.
type exchangeResult struct {
	User        *AuthenticatedUser
	IsNewUser   bool
	MFARequired bool
	MFAToken    string
}

// backendClient talks to the backend session endpoint. The server manages
// the session through an httpOnly cookie, so the client carries a cookie
// jar and sends credentials on every call; no token is ever persisted
// client-side.
type backendClient struct {
	baseURL string
	client  *http.Client
}

func newBackendClient(cfg BackendConfig, httpClient *http.Client) (*backendClient, error) {
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar}
	}
	return &backendClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

func (b *backendClient) login(ctx context.Context, idToken string, sessionType SessionType, skipMFA bool) (*exchangeResult, error) {
	body := loginRequest{
		IDToken:     idToken,
		SessionType: string(sessionType),
		SkipMFA:     skipMFA,
	}

	var resp loginResponse
	if _, err := b.post(ctx, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return normalizeExchange(&resp)
}

func (b *backendClient) confirmMFA(ctx context.Context, mfaToken, code string, isRecovery bool, idToken string) (*exchangeResult, error) {
	body := mfaRequest{
		MFAToken:       mfaToken,
		Code:           code,
		IsRecoveryCode: isRecovery,
		IDToken:        idToken,
	}

	var resp loginResponse
	if status, err := b.post(ctx, "/auth/login/mfa", body, &resp); err != nil {
		// A 4xx from the MFA endpoint means the code was rejected; the
		// challenge token stays valid for a retry. Server-side failures
		// stay backend errors.
		if errors.Is(err, ErrBackendRejected) && status >= 400 && status < 500 {
			return nil, fmt.Errorf("%w: %v", ErrMFACodeInvalid, err)
		}
		return nil, err
	}

	result, err := normalizeExchange(&resp)
	if err != nil {
		return nil, err
	}
	if result.User == nil {
		return nil, fmt.Errorf("%w: mfa completion returned no user", ErrMalformedResponse)
	}
	return result, nil
}

// logout notifies the backend. Callers treat failures as best-effort; the
// response body is ignored beyond status classification.
func (b *backendClient) logout(ctx context.Context) error {
	_, err := b.post(ctx, "/auth/logout", struct{}{}, nil)
	return err
}

// post returns the response status code alongside the classified error so
// callers can distinguish rejection classes; the status is 0 when no
// response arrived.
func (b *backendClient) post(ctx context.Context, path string, body, out any) (int, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return resp.StatusCode, fmt.Errorf("%w: %v", ErrExchangeTimeout, err)
		}
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var be backendError
		if err := json.Unmarshal(payload, &be); err == nil && be.Error != "" {
			return resp.StatusCode, fmt.Errorf("%w: %s (status %d)", ErrBackendRejected, be.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrBackendRejected, resp.StatusCode)
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}

func normalizeExchange(resp *loginResponse) (*exchangeResult, error) {
	if resp.MFARequired {
		if resp.MFAToken == "" {
			return nil, fmt.Errorf("%w: mfa challenge without token", ErrMalformedResponse)
		}
		return &exchangeResult{MFARequired: true, MFAToken: resp.MFAToken}, nil
	}
	if resp.User == nil || resp.User.UID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrMalformedResponse)
	}
	return &exchangeResult{
		User: &AuthenticatedUser{
			ID:            resp.User.UID,
			Email:         resp.User.Email,
			DisplayName:   resp.User.Name,
			AvatarURL:     resp.User.Avatar,
			EmailVerified: resp.User.EmailVerified,
		},
		IsNewUser: resp.IsNewUser,
	}, nil
}
