// Package ws serves the push connection: it registers each websocket with the
// session registry and answers the client's ACK and RESYNC frames.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	notifRepo "anoa.com/notifyhub/internal/modules/notification/repository"
	notif "anoa.com/notifyhub/internal/modules/notification/service"
	"anoa.com/notifyhub/internal/modules/session"
	"anoa.com/notifyhub/pkg/apperror"
	"anoa.com/notifyhub/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	maxFrameSize = 4096
	resyncAction = "resync"
)

type Config struct {
	WriteWait      time.Duration
	AllowedOrigins []string
	// ResyncCooldown is the minimum gap between two RESYNC frames of one
	// user. Zero disables the limit.
	ResyncCooldown time.Duration
}

type Handler struct {
	registry *session.Registry
	queries  notif.QueryService
	delivery notif.DeliveryService
	acks     notifRepo.AckRepository
	limiter  notifRepo.RateLimiter
	cfg      Config
	upgrader websocket.Upgrader
}

func NewHandler(
	registry *session.Registry,
	queries notif.QueryService,
	delivery notif.DeliveryService,
	acks notifRepo.AckRepository,
	limiter notifRepo.RateLimiter,
	cfg Config,
) *Handler {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	h := &Handler{
		registry: registry,
		queries:  queries,
		delivery: delivery,
		acks:     acks,
		limiter:  limiter,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Connect upgrades the request and keeps reading client frames until the
// connection goes away.
func (h *Handler) Connect(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(wsConn, h.cfg.WriteWait)
	s := h.registry.Add(userID, conn)
	log := logging.With().Str("user_id", userID).Str("conn_id", conn.ID()).Logger()
	log.Info().Msg("websocket connected")

	defer func() {
		_ = conn.Close("connection closed")
		h.registry.Remove(userID, s)
		log.Info().Msg("websocket disconnected")
	}()

	wsConn.SetReadLimit(maxFrameSize)
	wsConn.SetPongHandler(func(string) error {
		s.Touch()
		return nil
	})

	ctx := c.Request.Context()
	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		s.Touch()
		h.handleFrame(ctx, s, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, s *session.Session, data []byte) {
	log := logging.With().Str("user_id", s.UserID()).Str("conn_id", s.Conn().ID()).Logger()

	var frame dto.ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Msg("unreadable client frame")
		return
	}

	switch frame.Type {
	case dto.FrameAck:
		if frame.EventID == "" {
			log.Warn().Msg("ACK without eventId")
			return
		}
		if err := h.acks.SaveAck(ctx, s.UserID(), frame.EventID); err != nil {
			log.Error().Err(err).Str("event_id", frame.EventID).Msg("failed to store ack")
		}
	case dto.FrameResync:
		h.resync(ctx, s, frame)
	default:
		log.Warn().Str("type", frame.Type).Msg("unknown client frame type")
	}
}

// resync replays what the client missed to this connection only. Without an
// explicit afterId the last ACK position is used.
func (h *Handler) resync(ctx context.Context, s *session.Session, frame dto.ClientFrame) {
	log := logging.With().Str("user_id", s.UserID()).Str("conn_id", s.Conn().ID()).Logger()

	rows, after, err := h.resyncRows(ctx, s.UserID(), frame)
	if err != nil {
		log.Warn().Err(err).Int("status", apperror.MapErrorToStatus(err)).Str("after_id", after).Msg("RESYNC rejected")
		return
	}
	if after == "" {
		log.Debug().Msg("RESYNC without a position, nothing to replay")
		return
	}

	for i := range rows {
		if err := s.Conn().Send(h.delivery.Envelope(&rows[i], rows[i].SortID)); err != nil {
			log.Warn().Err(err).Msg("RESYNC send failed, closing connection")
			_ = s.Conn().Close("send failed")
			return
		}
	}
	log.Debug().Int("replayed", len(rows)).Str("after_id", after).Msg("RESYNC done")
}

// resyncRows resolves the replay position and loads what follows it. An empty
// position with a nil error means there is nothing to replay.
func (h *Handler) resyncRows(ctx context.Context, userID string, frame dto.ClientFrame) ([]entity.Notification, string, error) {
	allowed, err := h.limiter.Allow(ctx, userID, resyncAction, h.cfg.ResyncCooldown)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("RESYNC rate limit unavailable, continuing")
	} else if !allowed {
		return nil, frame.AfterID, apperror.New(http.StatusTooManyRequests, "RESYNC throttled", nil)
	}

	after := frame.AfterID
	if after == "" {
		last, err := h.acks.LastAck(ctx, userID)
		if err != nil {
			return nil, "", fmt.Errorf("load ack position: %w", err)
		}
		after = last
	}
	if after == "" {
		return nil, "", nil
	}

	rows, err := h.queries.Resync(ctx, userID, after, frame.Limit)
	if err != nil {
		return nil, after, err
	}
	return rows, after, nil
}
