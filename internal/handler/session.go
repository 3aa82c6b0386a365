package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sessiond/internal/logger"
	"github.com/sessiond/internal/middleware"
	"github.com/sessiond/internal/model"
	"github.com/sessiond/internal/service"
)

const (
	msgWelcome       = "Bienvenida al API de Control de Sesiones"
	msgLoggedIn      = "Se ha logeado de manera exitosa !!!"
	msgFieldsMissing = "Se esperan campos requeridos"
	msgLoggedOut     = "Logout successful"
	msgNoSession     = "No existe una sesión activa"
	msgNoSessionOut  = "No se encuentra una sesión activa"
	msgUpdated       = "Sesión ha sido actualizada"
	msgActive        = "Sesión activa"
	msgListAll       = "Sesiones registradas"
	msgListActive    = "Sesiones activas"
	msgInternal      = "Error interno del servidor"
)

type SessionHandler struct {
	svc    *service.SessionService
	cookie *CookieOptions
}

// NewSessionHandler создаёт обработчики сессий. cookie == nil — id возвращается только в теле ответа.
func NewSessionHandler(svc *service.SessionService, cookie *CookieOptions) *SessionHandler {
	return &SessionHandler{svc: svc, cookie: cookie}
}

// Routes регистрирует публичные маршруты сервиса. loginLimit оборачивает только POST /login.
func (h *SessionHandler) Routes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	r.Get("/", h.Welcome)
	r.Get("/health", h.Health)
	if loginLimit != nil {
		r.With(loginLimit).Post("/login", h.Login)
	} else {
		r.Post("/login", h.Login)
	}
	r.Put("/update", h.Update)
	r.Get("/status", h.Status)
	r.Post("/logout", h.Logout)
	r.Get("/sessions", h.List)
}

type sessionJSON struct {
	SessionID         string            `json:"sessionId"`
	Email             string            `json:"email"`
	Nickname          string            `json:"nickname"`
	MACAddress        string            `json:"macAddress"`
	IP                model.NetworkInfo `json:"ip"`
	CreatedAt         string            `json:"createdAt"`
	LastAccessed      string            `json:"lastAccessed"`
	Status            model.Status      `json:"status"`
	ConnectionTime    string            `json:"connectionTime"`
	InactivityTime    string            `json:"inactivityTime"`
	ConnectionSeconds int64             `json:"connectionSeconds"`
	InactivitySeconds int64             `json:"inactivitySeconds"`
}

func (h *SessionHandler) toJSON(v *model.SessionView) sessionJSON {
	conn := int64(v.ConnectionDuration / time.Second)
	idle := int64(v.IdleDuration / time.Second)
	return sessionJSON{
		SessionID:         v.ID,
		Email:             v.Email,
		Nickname:          v.Nickname,
		MACAddress:        v.MACAddress,
		IP:                v.Server,
		CreatedAt:         h.svc.FormatTime(v.CreatedAt),
		LastAccessed:      h.svc.FormatTime(v.LastAccessedAt),
		Status:            v.Status,
		ConnectionTime:    fmt.Sprintf("%d seconds", conn),
		InactivityTime:    fmt.Sprintf("%d seconds", idle),
		ConnectionSeconds: conn,
		InactivitySeconds: idle,
	}
}

type loginRequest struct {
	service.CreateRequest
}

func (l *loginRequest) fromForm(v url.Values) {
	l.Email = v.Get("email")
	l.Nickname = v.Get("nickname")
	l.MACAddress = v.Get("macAddress")
}

type updateRequest struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
}

func (u *updateRequest) fromForm(v url.Values) {
	u.SessionID = v.Get("sessionId")
	u.Email = v.Get("email")
	u.Nickname = v.Get("nickname")
}

type logoutRequest struct {
	SessionID string `json:"sessionId"`
}

func (l *logoutRequest) fromForm(v url.Values) {
	l.SessionID = v.Get("sessionId")
}

type loginResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type sessionResponse struct {
	Message string      `json:"message"`
	Session sessionJSON `json:"session"`
}

type listResponse struct {
	Message  string        `json:"message"`
	Filter   string        `json:"filter"`
	Count    int           `json:"count"`
	Sessions []sessionJSON `json:"sessions"`
}

// sessionID берёт id из тела/query, иначе из cookie.
func sessionID(explicit string, r *http.Request) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return cookieSessionID(r)
}

// serviceError переводит ошибку сервиса в HTTP-ответ.
func (h *SessionHandler) serviceError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeFailure(w, http.StatusBadRequest, err.Error(), msgFieldsMissing)
	case errors.Is(err, service.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "session not found", notFoundMsg)
	default:
		writeFailure(w, http.StatusInternalServerError, "internal server error", msgInternal)
	}
}

func (h *SessionHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: msgWelcome})
}

func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Login — POST /login {email, nickname, macAddress}.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error(), msgFieldsMissing)
		return
	}
	id, err := h.svc.Create(r.Context(), req.CreateRequest)
	if err != nil {
		h.serviceError(w, err, msgNoSession)
		return
	}
	if h.cookie != nil {
		setCookie(w, id, *h.cookie)
	}
	writeJSON(w, http.StatusOK, loginResponse{Message: msgLoggedIn, SessionID: id})
}

// Update — PUT /update {sessionId, email?, nickname?}: продлевает сессию.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.svc.TouchAndUpdate(r.Context(), sessionID(req.SessionID, r),
		model.SessionUpdate{Email: req.Email, Nickname: req.Nickname})
	if err != nil {
		h.serviceError(w, err, msgNoSession)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Message: msgUpdated, Session: h.toJSON(view)})
}

// Status — GET /status?sessionId=: снимок без продления.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetStatus(r.Context(), sessionID(r.URL.Query().Get("sessionId"), r))
	if err != nil {
		h.serviceError(w, err, msgNoSession)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Message: msgActive, Session: h.toJSON(view)})
}

// Logout — POST /logout {sessionId}.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := sessionID(req.SessionID, r)
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.serviceError(w, err, msgNoSessionOut)
		return
	}
	if h.cookie != nil {
		clearCookie(w, *h.cookie)
	}
	logger.Infof("logout ok id=%s", middleware.MaskSessionID(id))
	writeJSON(w, http.StatusOK, messageResponse{Message: msgLoggedOut})
}

// List — GET /sessions?filter=all|active.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := model.ParseListFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	views, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.serviceError(w, err, msgNoSession)
		return
	}
	out := make([]sessionJSON, 0, len(views))
	for i := range views {
		out = append(out, h.toJSON(&views[i]))
	}
	msg := msgListAll
	if filter == model.FilterActive {
		msg = msgListActive
	}
	writeJSON(w, http.StatusOK, listResponse{Message: msg, Filter: string(filter), Count: len(out), Sessions: out})
}
