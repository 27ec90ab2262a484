package dto

import (
	"fmt"
	"strings"
	"time"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
)

// NotificationEvent is the inbound broker message body.
type NotificationEvent struct {
	EventID          string              `json:"eventId" validate:"required"`
	ReceiverUserID   string              `json:"receiverUserId" validate:"required"`
	NotificationType string              `json:"notificationType" validate:"required"`
	OccurredAt       EventTime           `json:"occurredAt" validate:"required"`
	ActorProfile     entity.ActorProfile `json:"actorProfile"`
	Metadata         map[string]any      `json:"metadata"`
}

// EventTime accepts RFC 3339 and zone-less ISO-8601 timestamps. Zone-less
// values are read as UTC.
type EventTime struct {
	time.Time
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func ParseEventTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func (t *EventTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseEventTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t EventTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// NotificationCommand is a validated event with its metadata already decoded.
type NotificationCommand struct {
	EventID    string
	ReceiverID string
	Type       entity.NotificationType
	OccurredAt time.Time
	Actor      entity.ActorProfile
	Metadata   metadata.MetaData
}
