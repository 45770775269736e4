package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"login-guard/internal/util"
)

// RESTProvider talks to an Identity Toolkit compatible REST API.
type RESTProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

type RESTConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewRESTProvider(cfg RESTConfig, httpClient *http.Client, logger *zap.Logger) *RESTProvider {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RESTProvider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     util.OrNop(logger),
		now:        time.Now,
	}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
	} `json:"users"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn verifies the password and then looks the account up, because the
// password endpoint does not report the verification flag.
func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var tok tokenResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := p.call(ctx, "accounts:signInWithPassword", req, &tok); err != nil {
		return nil, err
	}
	s := p.sessionFromToken(tok)
	return p.Reload(ctx, s)
}

func (p *RESTProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var tok tokenResponse
	req := passwordRequest{Email: email, Password: password, ReturnSecureToken: true}
	if err := p.call(ctx, "accounts:signUp", req, &tok); err != nil {
		return nil, err
	}
	return p.sessionFromToken(tok), nil
}

func (p *RESTProvider) SendVerification(ctx context.Context, s *Session) error {
	req := map[string]string{"requestType": "VERIFY_EMAIL", "idToken": s.IDToken}
	return p.call(ctx, "accounts:sendOobCode", req, nil)
}

// Reload re-reads the account record and returns a new session carrying the
// same tokens with fresh profile fields.
func (p *RESTProvider) Reload(ctx context.Context, s *Session) (*Session, error) {
	var resp lookupResponse
	if err := p.call(ctx, "accounts:lookup", map[string]string{"idToken": s.IDToken}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Users) == 0 {
		return nil, &ProviderError{Code: "USER_NOT_FOUND", Message: "account no longer exists"}
	}
	u := resp.Users[0]
	fresh := s.Clone()
	fresh.UserID = u.LocalID
	fresh.Email = u.Email
	fresh.EmailVerified = u.EmailVerified
	return fresh, nil
}

func (p *RESTProvider) sessionFromToken(tok tokenResponse) *Session {
	s := &Session{
		UserID:       tok.LocalID,
		Email:        tok.Email,
		IDToken:      tok.IDToken,
		RefreshToken: tok.RefreshToken,
	}
	if secs, err := strconv.Atoi(tok.ExpiresIn); err == nil {
		s.ExpiresAt = p.now().Add(time.Duration(secs) * time.Second)
	}
	return s
}

func (p *RESTProvider) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", p.baseURL, method, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("Identity provider request failed",
			zap.String("method", method),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrUnavailable, method, err)
	}

	p.logger.Debug("Identity provider request",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, method, err)
	}
	return nil
}

// decodeError maps a provider error body onto the package error kinds.
// Messages look like "TOO_MANY_ATTEMPTS_TRY_LATER : detail". Account and
// credential rejections arrive as 400; any other status means a wrong
// endpoint or an outage and must not count against the user.
func decodeError(status int, raw []byte) error {
	if status >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}

	var env errorEnvelope
	var code, detail string
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		code, detail, _ = strings.Cut(env.Error.Message, " : ")
		code, detail = strings.TrimSpace(code), strings.TrimSpace(detail)
	}

	if code == CodeTooManyAttempts || status == http.StatusTooManyRequests {
		if detail == "" {
			return ErrThrottled
		}
		return fmt.Errorf("%w: %s", ErrThrottled, detail)
	}
	if status != http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
	if code == "" {
		return &ProviderError{Code: http.StatusText(status), Message: strings.TrimSpace(string(raw))}
	}
	return &ProviderError{Code: code, Message: detail}
}

// IsCredentialRejection reports whether err is a definitive provider
// rejection rather than an outage or throttle.
func IsCredentialRejection(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
