package dto

import (
	"time"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
)

const EnvelopeTypeNotification = "NOTIFICATION"

// FallbackEnvelope is sent when an envelope cannot be serialized.
var FallbackEnvelope = []byte(`{"type":"NOTIFICATION"}`)

type Preview struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"imageUrl"`
}

type Payload struct {
	NotificationType entity.NotificationType `json:"notificationType"`
	Metadata         metadata.MetaData       `json:"metadata"`
	Preview          Preview                 `json:"preview"`
}

type Envelope struct {
	Type       string    `json:"type"`
	EventID    string    `json:"eventId"`
	SortID     int64     `json:"sortId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    Payload   `json:"payload"`
}

// Inbound client frame types.
const (
	FrameAck    = "ACK"
	FrameResync = "RESYNC"
)

// ClientFrame is any frame a client sends on the push connection.
type ClientFrame struct {
	Type    string `json:"type"`
	EventID string `json:"eventId,omitempty"`
	AfterID string `json:"afterId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
