package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"

	"github.com/sessiond/internal/logger"
)

// writeJSONError — единый формат ошибок middleware: {"error": "..."}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// commitTracker отмечает, ушли ли клиенту заголовки (или соединение захвачено под WebSocket).
type commitTracker struct {
	http.ResponseWriter
	committed bool
}

func (t *commitTracker) WriteHeader(code int) {
	t.committed = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *commitTracker) Write(b []byte) (int, error) {
	t.committed = true
	return t.ResponseWriter.Write(b)
}

func (t *commitTracker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := t.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	t.committed = true
	return h.Hijack()
}

func (t *commitTracker) Unwrap() http.ResponseWriter { return t.ResponseWriter }

// RecoverJSON превращает панику обработчика в JSON 500, если ответ ещё не начат.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &commitTracker{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Errorf("panic recovered: %s %s: %v", r.Method, safeTarget(r.URL), rec)
			if !tw.committed {
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(tw, r)
	})
}
