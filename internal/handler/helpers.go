package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/sessiond/internal/logger"
)

// maxBodyBytes — предел тела запроса для JSON/form.
const maxBodyBytes = 64 << 10

var errBadBody = errors.New("invalid request body")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure — ошибка с машинным кодом и сообщением для пользователя.
func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// formDecoder заполняет запрос из application/x-www-form-urlencoded.
type formDecoder interface {
	fromForm(v url.Values)
}

// decodeBody разбирает JSON или form-urlencoded тело в dst. Пустое тело не ошибка.
func decodeBody(w http.ResponseWriter, r *http.Request, dst formDecoder) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return errBadBody
		}
		dst.fromForm(r.PostForm)
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errBadBody
	}
	return nil
}
