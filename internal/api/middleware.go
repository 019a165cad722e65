package api

import (
	"net/http"
	"strings"
)

const (
	guestCookie    = "guest_used"
	guestCookieAge = 60 * 60 * 24 * 365
)

// guestQuota lets anonymous callers POST exactly once across the generation
// endpoints. The first anonymous POST is allowed and sets guest_used=1;
// later anonymous POSTs get 403 with code GUEST_LIMIT. Callers presenting a
// bearer credential pass through unrestricted.
//
// The cookie check is a plain read/write with no cross-request atomicity:
// two near-simultaneous anonymous requests can both pass. Acceptable for
// this gate's stakes.
func (s *Server) guestQuota(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next(w, r)
			return
		}

		if cookie, err := r.Cookie(guestCookie); err == nil && cookie.Value == "1" {
			writeErrorCode(w, http.StatusForbidden,
				"Guest limit reached. Please sign up or log in to continue.", "GUEST_LIMIT")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     guestCookie,
			Value:    "1",
			Path:     "/",
			MaxAge:   guestCookieAge,
			SameSite: http.SameSiteLaxMode,
		})
		next(w, r)
	}
}

// requireUser resolves the bearer token to a user id before calling the
// handler. Missing or bad credentials get 401.
func (s *Server) requireUser(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authenticate(r)
		if !ok {
			writeErrorCode(w, http.StatusUnauthorized, "sign in required", "NOT_AUTHENTICATED")
			return
		}
		next(w, r, userID)
	}
}

// authenticate extracts and verifies the bearer token, returning the user id.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	userID, err := s.users.VerifyToken(strings.TrimSpace(auth[7:]))
	if err != nil {
		return "", false
	}
	return userID, true
}
