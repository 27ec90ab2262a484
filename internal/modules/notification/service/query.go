package service

import (
	"context"
	"fmt"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	notifRepo "anoa.com/notifyhub/internal/modules/notification/repository"
	"anoa.com/notifyhub/pkg/apperror"
)

type QueryService interface {
	FindNotificationDetail(ctx context.Context, userID, eventID string) (dto.NotificationDetails, error)
	FindNotificationByCursor(ctx context.Context, q dto.CursorQuery) (dto.CursorPage, error)
	FindUnreadNotificationByCursor(ctx context.Context, q dto.CursorQuery) (dto.CursorPage, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	// Resync returns the caller's notifications newer than afterEventID,
	// oldest first.
	Resync(ctx context.Context, userID, afterEventID string, limit int) ([]entity.Notification, error)
}

type queryService struct {
	repo notifRepo.NotificationRepository
}

func NewQueryService(repo notifRepo.NotificationRepository) QueryService {
	return &queryService{repo: repo}
}

func (s *queryService) FindNotificationDetail(ctx context.Context, userID, eventID string) (dto.NotificationDetails, error) {
	if eventID == "" {
		return dto.NotificationDetails{}, fmt.Errorf("%w: event id is required", apperror.ErrBadRequest)
	}

	n, err := s.repo.FetchByEventID(ctx, eventID)
	if err != nil {
		return dto.NotificationDetails{}, err
	}
	if n == nil {
		return dto.NotificationDetails{}, apperror.ErrNotFound
	}
	if n.ReceiverID != userID {
		return dto.NotificationDetails{}, apperror.ErrForbidden
	}

	details, err := dto.ToDetails(n)
	if err != nil {
		return dto.NotificationDetails{}, fmt.Errorf("%w: %v", apperror.ErrInternal, err)
	}
	return details, nil
}

func (s *queryService) FindNotificationByCursor(ctx context.Context, q dto.CursorQuery) (dto.CursorPage, error) {
	q = q.Normalize()
	rows, err := s.repo.FetchPageByCursor(ctx, q)
	if err != nil {
		return dto.CursorPage{}, err
	}
	return buildPage(rows, q.Limit), nil
}

func (s *queryService) FindUnreadNotificationByCursor(ctx context.Context, q dto.CursorQuery) (dto.CursorPage, error) {
	q = q.Normalize()
	rows, err := s.repo.FetchUnreadPageByCursor(ctx, q)
	if err != nil {
		return dto.CursorPage{}, err
	}
	return buildPage(rows, q.Limit), nil
}

// buildPage trims the look-ahead row. The next cursor comes from the last
// kept row and only exists when something was trimmed.
func buildPage(rows []entity.Notification, limit int) dto.CursorPage {
	var next *dto.Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		c := dto.CursorOf(&rows[limit-1])
		next = &c
	}

	content := make([]dto.NotificationDetails, 0, len(rows))
	for i := range rows {
		details, err := dto.ToDetails(&rows[i])
		if err != nil {
			logging.Error().Err(err).Str("event_id", rows[i].EventID).Msg("skipping notification with unreadable metadata")
			continue
		}
		content = append(content, details)
	}

	return dto.CursorPage{Content: content, NextCursor: next}
}

func (s *queryService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *queryService) Resync(ctx context.Context, userID, afterEventID string, limit int) ([]entity.Notification, error) {
	if afterEventID == "" {
		return nil, fmt.Errorf("%w: afterId is required", apperror.ErrBadRequest)
	}

	anchor, err := s.repo.FetchByEventIDAndReceiver(ctx, afterEventID, userID)
	if err != nil {
		return nil, err
	}
	if anchor == nil {
		return nil, apperror.ErrNotFound
	}

	q := dto.CursorQuery{Limit: limit}.Normalize()
	return s.repo.FetchNewerThan(ctx, userID, dto.CursorOf(anchor), q.Limit)
}
