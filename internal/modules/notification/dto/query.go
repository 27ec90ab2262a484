package dto

import (
	"fmt"
	"strconv"
	"time"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
	"anoa.com/notifyhub/pkg/apperror"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 50
)

// CursorRequest is bound from the query string of the read endpoints.
type CursorRequest struct {
	CursorTimestamp string `form:"cursor_timestamp"`
	CursorID        string `form:"cursor_id"`
	Limit           int    `form:"limit" binding:"omitempty,min=1"`
}

// ToQuery validates the raw parameters. A cursor id without a timestamp is
// rejected since the id alone does not position the cursor.
func (r CursorRequest) ToQuery(receiverID string) (CursorQuery, error) {
	q := CursorQuery{ReceiverID: receiverID, Limit: r.Limit}

	if r.CursorTimestamp != "" {
		ts, err := ParseEventTime(r.CursorTimestamp)
		if err != nil {
			return CursorQuery{}, fmt.Errorf("%w: cursor_timestamp: %v", apperror.ErrBadRequest, err)
		}
		q.CursorOccurredAt = &ts
	}

	if r.CursorID != "" {
		if q.CursorOccurredAt == nil {
			return CursorQuery{}, fmt.Errorf("%w: cursor_id requires cursor_timestamp", apperror.ErrBadRequest)
		}
		id, err := strconv.ParseInt(r.CursorID, 10, 64)
		if err != nil {
			return CursorQuery{}, fmt.Errorf("%w: cursor_id must be an integer", apperror.ErrBadRequest)
		}
		q.CursorSortID = &id
	}

	return q.Normalize(), nil
}

type CursorQuery struct {
	ReceiverID       string
	CursorOccurredAt *time.Time
	CursorSortID     *int64
	Limit            int
}

// Normalize applies the default and the upper bound to Limit.
func (q CursorQuery) Normalize() CursorQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

type Cursor struct {
	OccurredAt time.Time `json:"cursor_timestamp"`
	SortID     int64     `json:"cursor_id"`
}

func CursorOf(n *entity.Notification) Cursor {
	return Cursor{OccurredAt: n.OccurredAt.UTC(), SortID: n.SortID}
}

type CursorPage struct {
	Content    []NotificationDetails `json:"content"`
	NextCursor *Cursor               `json:"next_cursor"`
}

type SavedRef struct {
	EventID   string
	SortID    int64
	Duplicate bool
}

type ActorResponse struct {
	UserID          string `json:"user_id"`
	Nickname        string `json:"nickname"`
	ProfileImageURL string `json:"profile_image_url"`
}

type NotificationDetails struct {
	EventID          string                  `json:"event_id"`
	SortID           int64                   `json:"sort_id"`
	NotificationType entity.NotificationType `json:"notification_type"`
	OccurredAt       time.Time               `json:"occurred_at"`
	Actor            ActorResponse           `json:"actor_profile"`
	IsRead           bool                    `json:"is_read"`
	Metadata         metadata.MetaData       `json:"metadata"`
}

// ToDetails converts a stored row. Rows whose metadata no longer parses are
// reported as decode errors.
func ToDetails(n *entity.Notification) (NotificationDetails, error) {
	meta, err := metadata.Parse(n.NotificationType, n.Metadata)
	if err != nil {
		return NotificationDetails{}, fmt.Errorf("notification %s: %w", n.EventID, err)
	}
	return NotificationDetails{
		EventID:          n.EventID,
		SortID:           n.SortID,
		NotificationType: n.NotificationType,
		OccurredAt:       n.OccurredAt.UTC(),
		Actor: ActorResponse{
			UserID:          n.Actor.UserID,
			Nickname:        n.Actor.Nickname,
			ProfileImageURL: n.Actor.ProfileImageURL,
		},
		IsRead:   n.IsRead,
		Metadata: meta,
	}, nil
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
