package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/sessiond/internal/logger"
)

// InternalOnly разрешает запрос только с приватных IP или при заголовке X-Internal-Secret == secret.
// /metrics и /ws/events не экспонируются наружу.
func InternalOnly(secret string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Internal-Secret")), []byte(secret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			ip := ClientIP(r)
			if isPrivateIP(ip) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Infof("internal endpoint %s denied for %s", r.URL.Path, ip)
			writeJSONError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// ClientIP возвращает IP клиента: X-Real-Ip, первый адрес X-Forwarded-For, иначе RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}
