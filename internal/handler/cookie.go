package handler

import (
	"net/http"
	"strings"
)

const (
	// CookieName — имя cookie при Secure (префикс __Host- требует Secure и Path=/).
	CookieName = "__Host-session"
	// InsecureCookieName используется без TLS: браузеры отвергают __Host- без Secure.
	InsecureCookieName = "session"
)

// CookieOptions — параметры выдачи cookie с sessionId.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// normalize подставляет безопасные значения по умолчанию для незаданных полей.
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

func (o CookieOptions) name() string {
	if o.Secure {
		return CookieName
	}
	return InsecureCookieName
}

// setCookie выдаёт cookie сессии на время жизни браузерной сессии: срок жизни задаёт таймаут простоя на сервере.
func setCookie(w http.ResponseWriter, sessionID string, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    sessionID,
		Path:     opts.Path,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

func clearCookie(w http.ResponseWriter, opts CookieOptions) {
	opts = opts.normalize()
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    "",
		Path:     opts.Path,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// cookieSessionID читает id из cookie (любого из двух имён).
func cookieSessionID(r *http.Request) string {
	for _, name := range []string{CookieName, InsecureCookieName} {
		if c, err := r.Cookie(name); err == nil {
			if v := strings.TrimSpace(c.Value); v != "" {
				return v
			}
		}
	}
	return ""
}
