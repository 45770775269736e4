package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"login-guard/internal/client"
	"login-guard/internal/guard"
	"login-guard/internal/identity"
	"login-guard/internal/service"
	"login-guard/internal/util"
	"login-guard/internal/verification"
)

// AuthHandler exposes the login screen flows as JSON endpoints.
type AuthHandler struct {
	loginService *service.LoginService
	logger       *zap.Logger
	cookieName   string
	secureCookie bool
}

func NewAuthHandler(loginService *service.LoginService, logger *zap.Logger, cookieName string, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		loginService: loginService,
		logger:       util.OrNop(logger),
		cookieName:   cookieName,
		secureCookie: secureCookie,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	Session      *identity.Session `json:"session"`
	Verification string            `json:"verification"`
	Lockout      guard.Status      `json:"lockout"`
}

func successResponse(data any, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

// RegisterRoutes registers all auth and message routes
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(ClientID(h.cookieName, h.secureCookie))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/signup", h.SignUp)
			r.Post("/logout", h.Logout)
			r.Get("/lockout", h.Lockout)
			r.Get("/session", h.Session)
			r.Post("/verification/refresh", h.RefreshVerification)
			r.Post("/verification/resend", h.ResendVerification)
		})

		r.Get("/messages/public", h.PublicMessage)
		r.Get("/messages/protected", h.ProtectedMessage)
	})
}

// Login handles a login form submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := ClientIDFromContext(ctx)
	startTime := time.Now()

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", err, "Invalid request body", nil)
		return
	}

	sess, err := h.loginService.Login(ctx, clientID, req.Email, req.Password)
	if err != nil {
		h.respondWithServiceError(w, err, "Login failed")
		return
	}

	data := h.loginData(r, clientID, sess)
	h.respondWithJSON(w, http.StatusOK, successResponse(data, "Signed in"))
	h.logger.Info("Login succeeded via HTTP",
		util.String("client_id", clientID),
		util.String("user_id", sess.UserID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// SignUp handles account creation
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := ClientIDFromContext(ctx)

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", err, "Invalid request body", nil)
		return
	}

	sess, err := h.loginService.SignUp(ctx, clientID, req.Email, req.Password)
	if err != nil {
		h.respondWithServiceError(w, err, "Sign-up failed")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(h.loginData(r, clientID, sess),
		"Account created. Check your inbox to verify your email."))
}

// Logout signs the client out without touching its attempt history
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clientID := ClientIDFromContext(r.Context())
	if err := h.loginService.Logout(r.Context(), clientID); err != nil {
		h.respondWithServiceError(w, err, "Logout failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Signed out"))
}

// Lockout reports guard state for the countdown display
func (h *AuthHandler) Lockout(w http.ResponseWriter, r *http.Request) {
	st, err := h.loginService.LockoutStatus(r.Context(), ClientIDFromContext(r.Context()))
	if err != nil {
		h.respondWithServiceError(w, err, "Could not read lockout state")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(st, ""))
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	view, err := h.loginService.CurrentSession(r.Context(), ClientIDFromContext(r.Context()))
	if err != nil {
		h.respondWithServiceError(w, err, "Could not read session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(view, ""))
}

func (h *AuthHandler) RefreshVerification(w http.ResponseWriter, r *http.Request) {
	st, err := h.loginService.RefreshVerification(r.Context(), ClientIDFromContext(r.Context()))
	if err != nil {
		h.respondWithServiceError(w, err, "Could not refresh verification status")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"verification": st.String()}, ""))
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	if err := h.loginService.ResendVerification(r.Context(), ClientIDFromContext(r.Context())); err != nil {
		h.respondWithServiceError(w, err, "Could not send verification email")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification email sent"))
}

func (h *AuthHandler) PublicMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.loginService.PublicMessage(r.Context())
	if err != nil {
		h.respondWithServiceError(w, err, "Public endpoint failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"message": msg}, ""))
}

func (h *AuthHandler) ProtectedMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.loginService.ProtectedMessage(r.Context(), ClientIDFromContext(r.Context()))
	if err != nil {
		h.respondWithServiceError(w, err, "Protected endpoint failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"message": msg}, ""))
}

func (h *AuthHandler) loginData(r *http.Request, clientID string, sess *identity.Session) loginData {
	data := loginData{Session: sess, Verification: verification.StatusUnverified.String()}
	if view, err := h.loginService.CurrentSession(r.Context(), clientID); err == nil {
		data.Verification = view.Verification
	}
	if st, err := h.loginService.LockoutStatus(r.Context(), clientID); err == nil {
		data.Lockout = st
	}
	return data
}

// respondWithJSON sends a JSON response
func (h *AuthHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *AuthHandler) respondWithError(w http.ResponseWriter, statusCode int, code string, err error, message string, data any) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("code", code),
	)
	h.respondWithJSON(w, statusCode, Response{
		Success: false,
		Data:    data,
		Error:   err.Error(),
		Code:    code,
		Message: message,
	})
}

// respondWithServiceError maps service errors onto status codes and puts the
// countdown/attempt numbers the form needs into data.
func (h *AuthHandler) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	status, code := errorStatus(err)
	message := fallback
	var data any

	var limited *guard.RateLimitedError
	var failed *guard.AuthFailedError
	var rejected *identity.ProviderError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.SecondsRemaining))
		message = limited.Error()
		data = map[string]int{"seconds_remaining": limited.SecondsRemaining}
	case errors.As(err, &failed):
		message = failed.ProviderMessage
		data = map[string]int{"attempts_remaining": failed.AttemptsRemaining}
	case errors.As(err, &rejected):
		message = rejected.UserMessage()
	case errors.Is(err, verification.ErrResendThrottled):
		message = "Please wait before requesting another verification email."
	}
	h.respondWithError(w, status, code, err, message, data)
}

// errorStatus determines the HTTP status and machine-readable code for an
// error. Order matters where errors wrap each other.
func errorStatus(err error) (int, string) {
	var limited *guard.RateLimitedError
	var failed *guard.AuthFailedError
	var rejected *identity.ProviderError
	switch {
	case errors.Is(err, guard.ErrInvalidInput), errors.Is(err, service.ErrInvalidClientID):
		return http.StatusBadRequest, "invalid_input"
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, guard.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.As(err, &failed):
		return http.StatusUnauthorized, "auth_failed"
	case errors.Is(err, verification.ErrResendThrottled):
		return http.StatusTooManyRequests, "resend_throttled"
	case errors.Is(err, verification.ErrRefreshFailed):
		return http.StatusServiceUnavailable, "refresh_failed"
	case errors.Is(err, verification.ErrResendFailed):
		return http.StatusBadGateway, "resend_failed"
	case errors.Is(err, verification.ErrUnverified):
		return http.StatusForbidden, "unverified"
	case errors.Is(err, service.ErrNotSignedIn):
		return http.StatusUnauthorized, "not_signed_in"
	case errors.Is(err, guard.ErrProviderUnavailable), errors.Is(err, identity.ErrUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, identity.ErrThrottled):
		return http.StatusTooManyRequests, "provider_throttled"
	case errors.As(err, &rejected):
		if rejected.Code == identity.CodeEmailExists {
			return http.StatusConflict, "account_rejected"
		}
		return http.StatusBadRequest, "account_rejected"
	case errors.Is(err, client.ErrBackendUnauthorized):
		return http.StatusUnauthorized, "backend_unauthorized"
	case errors.Is(err, client.ErrBackendUnavailable):
		return http.StatusBadGateway, "backend_unavailable"
	case errors.Is(err, service.ErrServiceClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
