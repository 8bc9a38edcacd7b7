package http

import (
	"net/http"
	"time"
)

// RefreshCookieName is the http-only cookie that carries the refresh token.
const RefreshCookieName = "refresh_token"

// CookieConfig controls the attributes of the refresh cookie.
type CookieConfig struct {
	// Secure is false only in development, where the server runs over plain HTTP.
	Secure bool
	TTL    time.Duration
}

func (c CookieConfig) set(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
