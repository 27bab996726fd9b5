package web

import (
	"context"
	"net/http"
	"time"

	"github.com/hazyhaar/deepresearch/idgen"
	"github.com/hazyhaar/deepresearch/kit"
)

// SessionCookie names the browser session cookie. Its value is a UUIDv7.
const SessionCookie = "dr_session"

const sessionMaxAge = 30 * 24 * time.Hour

// session resolves the browser session from its cookie, issuing a new one
// when the cookie is missing or malformed.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if ck, err := r.Cookie(SessionCookie); err == nil {
			id, _ = idgen.Parse(ck.Value)
		}
		if id == "" {
			id = idgen.New()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(sessionMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(kit.WithSessionID(r.Context(), id)))
	})
}

func sessionID(ctx context.Context) string {
	return kit.GetSessionID(ctx)
}
