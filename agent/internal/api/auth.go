package api

import (
	"crypto/subtle"
	"net/http"
)

// AuthModeAPIKey enables API key checking in RequireAPIKey.
const AuthModeAPIKey = "apikey"

// RequireAPIKey returns middleware that enforces API key authentication.
//
// If mode != "apikey" or key == "", every request passes through. Otherwise
// the value of header must equal key; a missing or wrong key returns 401.
func RequireAPIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != AuthModeAPIKey || key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				jsonErr(w, http.StatusUnauthorized, "missing api key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				jsonErr(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
