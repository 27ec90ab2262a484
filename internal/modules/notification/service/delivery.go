package service

import (
	"context"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/metrics"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
	"github.com/goccy/go-json"
)

// Pusher fans a serialized envelope out to a user's live connections.
type Pusher interface {
	Broadcast(userID string, payload []byte) int
}

type DeliveryService interface {
	// PushNotification is fire-and-forget. The record is already stored, so
	// nothing that happens here is reported back.
	PushNotification(ctx context.Context, n *entity.Notification, sortID int64)
	// Envelope serializes n for the push connection, falling back to the
	// minimal envelope when that is impossible.
	Envelope(n *entity.Notification, sortID int64) []byte
}

type deliveryService struct {
	pusher Pusher
}

func NewDeliveryService(pusher Pusher) DeliveryService {
	return &deliveryService{pusher: pusher}
}

func (s *deliveryService) PushNotification(ctx context.Context, n *entity.Notification, sortID int64) {
	payload := s.Envelope(n, sortID)
	delivered := s.pusher.Broadcast(n.ReceiverID, payload)

	logging.Debug().
		Str("event_id", n.EventID).
		Str("receiver_id", n.ReceiverID).
		Int("delivered", delivered).
		Msg("notification pushed")
}

func (s *deliveryService) Envelope(n *entity.Notification, sortID int64) []byte {
	meta, err := metadata.Parse(n.NotificationType, n.Metadata)
	if err != nil {
		metrics.PushFailed.Inc()
		logging.Error().Err(err).Str("event_id", n.EventID).Msg("stored metadata unreadable, sending fallback envelope")
		return dto.FallbackEnvelope
	}

	env := dto.Envelope{
		Type:       dto.EnvelopeTypeNotification,
		EventID:    n.EventID,
		SortID:     sortID,
		OccurredAt: n.OccurredAt.UTC(),
		Payload: dto.Payload{
			NotificationType: n.NotificationType,
			Metadata:         meta,
			Preview:          BuildPreview(n.NotificationType, n.Actor, meta),
		},
	}

	b, err := json.Marshal(env)
	if err != nil {
		logging.Error().Err(err).Str("event_id", n.EventID).Msg("envelope serialization failed, sending fallback envelope")
		return dto.FallbackEnvelope
	}
	return b
}
