package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"login-guard/internal/config"
	"login-guard/internal/util"
)

var (
	ErrBackendUnauthorized = errors.New("backend rejected credential")
	ErrBackendUnavailable  = errors.New("backend unavailable")
)

// BackendClient calls the two read endpoints of the application backend.
// Both return a short text message.
type BackendClient struct {
	baseURL       string
	publicPath    string
	protectedPath string
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewBackendClient(cfg config.BackendConfig, httpClient *http.Client, logger *zap.Logger) *BackendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &BackendClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		publicPath:    cfg.PublicPath,
		protectedPath: cfg.ProtectedPath,
		httpClient:    httpClient,
		logger:        util.OrNop(logger),
	}
}

func (c *BackendClient) FetchPublic(ctx context.Context) (string, error) {
	return c.fetch(ctx, c.publicPath, "")
}

// FetchProtected sends idToken as a bearer credential.
func (c *BackendClient) FetchProtected(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", ErrBackendUnauthorized
	}
	return c.fetch(ctx, c.protectedPath, idToken)
}

func (c *BackendClient) fetch(ctx context.Context, path, bearer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrBackendUnavailable, err)
	}

	c.logger.Debug("Backend request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d", ErrBackendUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return decodeMessage(body), nil
}

// decodeMessage accepts {"message": "..."} or a plain text body.
func decodeMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
