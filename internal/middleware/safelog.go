package middleware

import (
	"net/url"
	"strings"
)

// MaskSessionID маскирует sessionId в логах (полный id не светить).
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}

// safeTarget возвращает path?query для лога с замаскированным sessionId.
func safeTarget(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	q := u.Query()
	if id := q.Get("sessionId"); id != "" {
		q.Set("sessionId", MaskSessionID(id))
	}
	return u.Path + "?" + q.Encode()
}
