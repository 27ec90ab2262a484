package repository

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository interface {
	// Save inserts n. A row with the same event id is left untouched; in that
	// case n is overwritten with the stored row and the ref is marked Duplicate.
	Save(ctx context.Context, n *entity.Notification) (dto.SavedRef, error)
	FetchByEventID(ctx context.Context, eventID string) (*entity.Notification, error)
	FetchByEventIDAndReceiver(ctx context.Context, eventID, receiverID string) (*entity.Notification, error)
	ExistsByEventIDAndReceiver(ctx context.Context, eventID, receiverID string) (bool, error)
	FetchPageByCursor(ctx context.Context, q dto.CursorQuery) ([]entity.Notification, error)
	FetchUnreadPageByCursor(ctx context.Context, q dto.CursorQuery) ([]entity.Notification, error)
	FetchNewerThan(ctx context.Context, receiverID string, after dto.Cursor, limit int) ([]entity.Notification, error)
	MarkRead(ctx context.Context, eventID string) error
	MarkAllRead(ctx context.Context, receiverID string) error
	DeleteByEventID(ctx context.Context, eventID string) error
	DeleteAllByReceiver(ctx context.Context, receiverID string) error
	CountUnread(ctx context.Context, receiverID string) (int64, error)

	WithTx(tx *gorm.DB) NotificationRepository
	Transaction(ctx context.Context, fn func(repo NotificationRepository) error) error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	return &notificationRepository{db: tx}
}

func (r *notificationRepository) Transaction(ctx context.Context, fn func(repo NotificationRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

func (r *notificationRepository) Save(ctx context.Context, n *entity.Notification) (dto.SavedRef, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(n)
	if res.Error != nil {
		return dto.SavedRef{}, fmt.Errorf("save notification %s: %w", n.EventID, res.Error)
	}
	if res.RowsAffected > 0 {
		return dto.SavedRef{EventID: n.EventID, SortID: n.SortID}, nil
	}

	existing, err := r.FetchByEventID(ctx, n.EventID)
	if err != nil {
		return dto.SavedRef{}, err
	}
	if existing == nil {
		return dto.SavedRef{}, fmt.Errorf("save notification %s: conflicting row vanished", n.EventID)
	}
	*n = *existing
	return dto.SavedRef{EventID: existing.EventID, SortID: existing.SortID, Duplicate: true}, nil
}

func (r *notificationRepository) FetchByEventID(ctx context.Context, eventID string) (*entity.Notification, error) {
	return r.first(r.db.WithContext(ctx).Where("event_id = ?", eventID))
}

func (r *notificationRepository) FetchByEventIDAndReceiver(ctx context.Context, eventID, receiverID string) (*entity.Notification, error) {
	return r.first(r.db.WithContext(ctx).Where("event_id = ? AND receiver_id = ?", eventID, receiverID))
}

// first returns nil, nil when nothing matches.
func (r *notificationRepository) first(q *gorm.DB) (*entity.Notification, error) {
	var n entity.Notification
	if err := q.First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) ExistsByEventIDAndReceiver(ctx context.Context, eventID, receiverID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("event_id = ? AND receiver_id = ?", eventID, receiverID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check notification %s: %w", eventID, err)
	}
	return count > 0, nil
}

func (r *notificationRepository) FetchPageByCursor(ctx context.Context, q dto.CursorQuery) ([]entity.Notification, error) {
	return r.page(r.db.WithContext(ctx).Where("receiver_id = ?", q.ReceiverID), q)
}

func (r *notificationRepository) FetchUnreadPageByCursor(ctx context.Context, q dto.CursorQuery) ([]entity.Notification, error) {
	return r.page(r.db.WithContext(ctx).Where("receiver_id = ? AND is_read = ?", q.ReceiverID, false), q)
}

// page returns up to Limit+1 rows after the cursor in (occurred_at, sort_id)
// descending order. The extra row tells the caller another page exists.
func (r *notificationRepository) page(db *gorm.DB, q dto.CursorQuery) ([]entity.Notification, error) {
	switch {
	case q.CursorOccurredAt != nil && q.CursorSortID != nil:
		ts := q.CursorOccurredAt.UTC()
		db = db.Where("(occurred_at < ? OR (occurred_at = ? AND sort_id < ?))", ts, ts, *q.CursorSortID)
	case q.CursorOccurredAt != nil:
		db = db.Where("occurred_at < ?", q.CursorOccurredAt.UTC())
	}

	var notifications []entity.Notification
	err := db.Order("occurred_at DESC").
		Order("sort_id DESC").
		Limit(q.Limit + 1).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("fetch notification page for %s: %w", q.ReceiverID, err)
	}
	return notifications, nil
}

func (r *notificationRepository) FetchNewerThan(ctx context.Context, receiverID string, after dto.Cursor, limit int) ([]entity.Notification, error) {
	ts := after.OccurredAt.UTC()

	var notifications []entity.Notification
	err := r.db.WithContext(ctx).
		Where("receiver_id = ?", receiverID).
		Where("(occurred_at > ? OR (occurred_at = ? AND sort_id > ?))", ts, ts, after.SortID).
		Order("occurred_at ASC").
		Order("sort_id ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("fetch notifications newer than %d for %s: %w", after.SortID, receiverID, err)
	}
	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, eventID string) error {
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("event_id = ?", eventID).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", eventID, err)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, receiverID string) error {
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("mark all notifications read for %s: %w", receiverID, err)
	}
	return nil
}

func (r *notificationRepository) DeleteByEventID(ctx context.Context, eventID string) error {
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&entity.Notification{}).Error
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", eventID, err)
	}
	return nil
}

func (r *notificationRepository) DeleteAllByReceiver(ctx context.Context, receiverID string) error {
	err := r.db.WithContext(ctx).Where("receiver_id = ?", receiverID).Delete(&entity.Notification{}).Error
	if err != nil {
		return fmt.Errorf("delete notifications for %s: %w", receiverID, err)
	}
	return nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, receiverID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Notification{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread for %s: %w", receiverID, err)
	}
	return count, nil
}
