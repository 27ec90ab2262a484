package entity

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypePostLike      NotificationType = "POST_LIKE"
	NotificationTypeCommentAdded  NotificationType = "COMMENT_ADDED"
	NotificationTypeCommentLike   NotificationType = "COMMENT_LIKE"
	NotificationTypeFollow        NotificationType = "FOLLOW"
	NotificationTypeFollowRequest NotificationType = "FOLLOW_REQUEST"
	NotificationTypeFollowAccept  NotificationType = "FOLLOW_ACCEPT"
)

// AllNotificationTypes is the closed set of supported types. Anything keyed by
// type (metadata variants, preview builders) must cover every entry.
var AllNotificationTypes = []NotificationType{
	NotificationTypePostLike,
	NotificationTypeCommentAdded,
	NotificationTypeCommentLike,
	NotificationTypeFollow,
	NotificationTypeFollowRequest,
	NotificationTypeFollowAccept,
}

func ParseNotificationType(s string) (NotificationType, error) {
	for _, t := range AllNotificationTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown notification type %q", s)
}

// ActorProfile is a snapshot of whoever triggered the notification, taken when
// the event was produced. It is never refreshed.
type ActorProfile struct {
	UserID          string `gorm:"size:64" json:"userId"`
	Nickname        string `gorm:"size:100" json:"nickname"`
	ProfileImageURL string `gorm:"type:text" json:"profileImageUrl"`
}

type Notification struct {
	SortID           int64            `gorm:"primaryKey;autoIncrement;index:idx_receiver_cursor,priority:3" json:"sort_id"`
	EventID          string           `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	ReceiverID       string           `gorm:"size:64;not null;index:idx_receiver_cursor,priority:1" json:"receiver_id"`
	NotificationType NotificationType `gorm:"size:32;not null" json:"notification_type"`
	OccurredAt       time.Time        `gorm:"not null;index:idx_receiver_cursor,priority:2" json:"occurred_at"`
	Actor            ActorProfile     `gorm:"embedded;embeddedPrefix:actor_" json:"actor_profile"`
	IsRead           bool             `gorm:"not null;default:false" json:"is_read"`
	Metadata         datatypes.JSON   `gorm:"not null" json:"metadata"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate stores OccurredAt as UTC at the database's microsecond
// precision, so the in-memory record pushed after the insert carries the
// same cursor value a later read returns.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	n.OccurredAt = n.OccurredAt.UTC().Truncate(time.Microsecond)
	return nil
}

// MarkAsRead flips the read flag. Read state never goes back to unread.
func (n *Notification) MarkAsRead() {
	n.IsRead = true
}
