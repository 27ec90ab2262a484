// Package consumer turns broker messages into ingested notifications.
package consumer

import (
	"errors"
	"fmt"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/metrics"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
	"anoa.com/notifyhub/internal/modules/notification/service"
	"anoa.com/notifyhub/pkg/apperror"
	"anoa.com/notifyhub/pkg/validator"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type Handler struct {
	commands service.CommandService
	logger   zerolog.Logger
}

func NewHandler(commands service.CommandService) *Handler {
	return &Handler{
		commands: commands,
		logger:   logging.With().Str("component", "notification-consumer").Logger(),
	}
}

// Handle processes one notification event. A nil return acks the message.
// Only failures that may succeed on redelivery are returned.
func (h *Handler) Handle(msg *message.Message) error {
	log := h.logger.With().Str("message_uuid", msg.UUID).Logger()

	if attempt := Attempt(msg); attempt > 1 {
		metrics.ConsumerRetryAttempts.Inc()
		log.Warn().Int("attempt", attempt).Msg("redelivered notification event")
	}

	var ev dto.NotificationEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		h.drop(log, msg, metrics.ReasonMalformed, fmt.Errorf("%w: %v", apperror.ErrValidation, err))
		return nil
	}
	log = log.With().Str("event_id", ev.EventID).Str("receiver_id", ev.ReceiverUserID).Logger()

	if key := msg.Metadata.Get(PartitionKeyMetadata); key != "" && key != ev.ReceiverUserID {
		metrics.ConsumerKeyMismatch.Inc()
		log.Warn().Str("key", key).Msg("transport key does not match receiver, dropping event")
		return nil
	}

	if err := validator.Struct(ev); err != nil {
		h.drop(log, msg, metrics.ReasonMalformed, fmt.Errorf("%w: %v", apperror.ErrValidation, err))
		return nil
	}

	nt := entity.NotificationType(ev.NotificationType)
	meta, err := metadata.Decode(nt, ev.Metadata)
	if err != nil {
		h.drop(log, msg, metrics.ReasonDecode, err)
		return nil
	}

	cmd := dto.NotificationCommand{
		EventID:    ev.EventID,
		ReceiverID: ev.ReceiverUserID,
		Type:       nt,
		OccurredAt: ev.OccurredAt.Time,
		Actor:      ev.ActorProfile,
		Metadata:   meta,
	}

	if err := h.commands.Ingest(msg.Context(), cmd); err != nil {
		if apperror.IsPermanent(err) {
			h.drop(log, msg, metrics.ReasonDecode, err)
			return nil
		}
		return fmt.Errorf("ingest notification %s: %w", ev.EventID, err)
	}

	metrics.ConsumerSuccess.Inc()
	log.Debug().Str("notification_type", ev.NotificationType).Msg("notification event ingested")
	return nil
}

func (h *Handler) drop(log zerolog.Logger, msg *message.Message, reason string, err error) {
	metrics.ConsumerFinalFailures.WithLabelValues(reason).Inc()
	log.Error().
		Err(err).
		Str("reason", reason).
		Str("key", msg.Metadata.Get(PartitionKeyMetadata)).
		Bytes("payload", msg.Payload).
		Msg("dropping notification event")
}

// HandlePoisoned is the terminal handler for events that exhausted their
// retries. It records everything needed to replay the event by hand.
func (h *Handler) HandlePoisoned(msg *message.Message) error {
	metrics.ConsumerFinalFailures.WithLabelValues(metrics.ReasonExhausted).Inc()

	h.logger.Error().
		Err(errors.New(msg.Metadata.Get(middleware.ReasonForPoisonedKey))).
		Str("topic", msg.Metadata.Get(middleware.PoisonedTopicKey)).
		Str("handler", msg.Metadata.Get(middleware.PoisonedHandlerKey)).
		Str("key", msg.Metadata.Get(PartitionKeyMetadata)).
		Str("sequence", msg.Metadata.Get(SequenceMetadata)).
		Str("attempts", msg.Metadata.Get(AttemptMetadata)).
		Str("message_uuid", msg.UUID).
		Bytes("payload", msg.Payload).
		Msg("notification event exhausted retries")
	return nil
}
