package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/sessiond/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path (sessionId замаскирован), статус и время выполнения.
// Запись асинхронная; при LOG_LEVEL=info попадают только медленные запросы и ответы 5xx.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		target := safeTarget(r.URL)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			name := "http " + r.Method + " " + target + " status=" + strconv.Itoa(status)
			if status >= http.StatusInternalServerError {
				logger.Errorf("%s duration_ms=%d", name, time.Since(start).Milliseconds())
				return
			}
			logger.LogDuration(name, start)
		}()
		next.ServeHTTP(ww, r)
	})
}
