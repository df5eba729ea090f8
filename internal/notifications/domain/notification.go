package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const ChannelEmail = "email"

// namespace para los IDs deterministas de notificación (UUIDv5).
var notificationNamespace = uuid.MustParse("6f1f6a52-3c1e-5b8e-9a57-1e0c3f7b9d21")

// Notification es un mensaje ya preparado para un destinatario.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`
	Channel   string    `json:"channel"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	EventName string    `json:"event_name"`
	SourceID  string    `json:"source_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationID es estable para (evento, origen, destinatario): una entrega
// duplicada del mismo evento produce el mismo ID y el Store la sobrescribe.
func NotificationID(eventName, sourceID, recipient string) uuid.UUID {
	key := strings.Join([]string{eventName, sourceID, strings.ToLower(recipient)}, "|")
	return uuid.NewSHA1(notificationNamespace, []byte(key))
}

func NewEmail(eventName, sourceID, recipient, subject, body string, at time.Time) *Notification {
	return &Notification{
		ID:        NotificationID(eventName, sourceID, recipient),
		Recipient: strings.ToLower(recipient),
		Channel:   ChannelEmail,
		Subject:   subject,
		Body:      body,
		EventName: eventName,
		SourceID:  sourceID,
		CreatedAt: at.UTC(),
	}
}
