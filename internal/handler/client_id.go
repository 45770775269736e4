package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type clientIDKey struct{}

const clientIDHeader = "X-Client-ID"

// ClientID assigns every browser a stable id, the server-side stand-in for
// the browser origin that scopes attempt state. The id travels in a cookie;
// non-browser callers may send it in X-Client-ID instead.
func ClientID(cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cookieName); err == nil {
				id = c.Value
			}
			if id == "" {
				id = r.Header.Get(clientIDHeader)
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
					Expires:  time.Now().AddDate(1, 0, 0),
				})
			}
			w.Header().Set(clientIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIDKey{}, id)))
		})
	}
}

// ClientIDFromContext returns the id set by the ClientID middleware.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
