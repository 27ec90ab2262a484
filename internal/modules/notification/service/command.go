package service

import (
	"context"
	"fmt"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
	notifRepo "anoa.com/notifyhub/internal/modules/notification/repository"
	"anoa.com/notifyhub/pkg/apperror"
)

type CommandService interface {
	Ingest(ctx context.Context, cmd dto.NotificationCommand) error
	RemoveNotification(ctx context.Context, eventID, userID string) error
	ClearNotifications(ctx context.Context, userID string) error
	MarkNotificationAsRead(ctx context.Context, eventID, userID string) error
	MarkAllNotificationsAsRead(ctx context.Context, userID string) error
}

type commandService struct {
	repo     notifRepo.NotificationRepository
	delivery DeliveryService
}

func NewCommandService(repo notifRepo.NotificationRepository, delivery DeliveryService) CommandService {
	return &commandService{
		repo:     repo,
		delivery: delivery,
	}
}

// Ingest stores the notification and pushes it once the transaction has
// committed. A push never runs for a record that is not queryable yet.
func (s *commandService) Ingest(ctx context.Context, cmd dto.NotificationCommand) error {
	encoded, err := metadata.Encode(cmd.Metadata)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", cmd.EventID, err)
	}

	record := &entity.Notification{
		EventID:          cmd.EventID,
		ReceiverID:       cmd.ReceiverID,
		NotificationType: cmd.Type,
		OccurredAt:       cmd.OccurredAt,
		Actor:            cmd.Actor,
		IsRead:           false,
		Metadata:         encoded,
	}

	var ref dto.SavedRef
	err = s.repo.Transaction(ctx, func(tx notifRepo.NotificationRepository) error {
		var err error
		ref, err = tx.Save(ctx, record)
		return err
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", cmd.EventID, err)
	}

	if ref.Duplicate {
		if record.ReceiverID != cmd.ReceiverID {
			logging.Warn().
				Str("event_id", cmd.EventID).
				Str("receiver_id", cmd.ReceiverID).
				Str("stored_receiver_id", record.ReceiverID).
				Msg("duplicate event id for another receiver, skipping push")
			return nil
		}
		logging.Info().Str("event_id", cmd.EventID).Msg("duplicate event, pushing stored record again")
	}

	s.delivery.PushNotification(ctx, record, ref.SortID)
	return nil
}

func (s *commandService) RemoveNotification(ctx context.Context, eventID, userID string) error {
	exists, err := s.repo.ExistsByEventIDAndReceiver(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !exists {
		return apperror.ErrNotFound
	}
	return s.repo.DeleteByEventID(ctx, eventID)
}

func (s *commandService) ClearNotifications(ctx context.Context, userID string) error {
	return s.repo.DeleteAllByReceiver(ctx, userID)
}

// MarkNotificationAsRead only touches the caller's own notification. An event
// that exists for someone else is reported as forbidden.
func (s *commandService) MarkNotificationAsRead(ctx context.Context, eventID, userID string) error {
	n, err := s.repo.FetchByEventIDAndReceiver(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if n == nil {
		foreign, err := s.repo.FetchByEventID(ctx, eventID)
		if err != nil {
			return err
		}
		if foreign != nil {
			return apperror.ErrForbidden
		}
		return apperror.ErrNotFound
	}

	if n.IsRead {
		return nil
	}
	n.MarkAsRead()
	return s.repo.MarkRead(ctx, n.EventID)
}

func (s *commandService) MarkAllNotificationsAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID)
}
