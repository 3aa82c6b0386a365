package ws

import (
	"time"

	"github.com/sessiond/internal/model"
)

// EventError отправляется клиенту при некорректном входящем сообщении.
const EventError model.EventType = "error"

// IncomingMessage — управляющее сообщение от подписчика.
// Поддерживается только смена фильтра: {"type":"subscribe","sessionId":"..."}; пустой id — все события.
type IncomingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    model.EventType `json:"type"`
	Payload any             `json:"payload"`
}

// SessionEventPayload — событие жизненного цикла сессии.
type SessionEventPayload struct {
	SessionID string    `json:"sessionId"`
	At        time.Time `json:"at"`
}

// ErrorPayload описывает ошибку обработки входящего сообщения.
type ErrorPayload struct {
	Message string `json:"message"`
}

func newEventMessage(ev model.SessionEvent) OutgoingMessage {
	return OutgoingMessage{
		Type:    ev.Type,
		Payload: SessionEventPayload{SessionID: ev.SessionID, At: ev.At},
	}
}
