package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
	notifRepo "anoa.com/notifyhub/internal/modules/notification/repository"
	notif "anoa.com/notifyhub/internal/modules/notification/service"
	"anoa.com/notifyhub/internal/modules/session"
	"anoa.com/notifyhub/internal/testutil"
	"anoa.com/notifyhub/pkg/apperror"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	handler  *Handler
	server   *httptest.Server
	registry *session.Registry
	commands notif.CommandService
	redis    *miniredis.Miniredis
}

func newEnv(t *testing.T, cfg Config) *env {
	gin.SetMode(gin.TestMode)

	repo := notifRepo.NewNotificationRepository(testutil.NewDB(t))
	client, mr := testutil.NewRedis(t)
	registry := session.NewRegistry(session.Config{PingInterval: time.Hour, PongTimeout: time.Hour})
	delivery := notif.NewDeliveryService(registry)
	commands := notif.NewCommandService(repo, delivery)
	queries := notif.NewQueryService(repo)

	h := NewHandler(registry, queries, delivery, notifRepo.NewAckRepository(client), notifRepo.NewRateLimiter(client), cfg)

	engine := gin.New()
	engine.GET("/ws", func(c *gin.Context) {
		if u := c.Query("user"); u != "" {
			c.Set("user_id", u)
		}
		c.Next()
	}, h.Connect)

	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		registry.Shutdown()
		srv.Close()
	})
	return &env{handler: h, server: srv, registry: registry, commands: commands, redis: mr}
}

func (e *env) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?user=" + user
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return e.registry.LiveCount(user) > 0 }, 2*time.Second, 5*time.Millisecond)
	return c
}

func (e *env) ingest(t *testing.T, eventID, user string, at time.Time) {
	t.Helper()
	require.NoError(t, e.commands.Ingest(context.Background(), dto.NotificationCommand{
		EventID:    eventID,
		ReceiverID: user,
		Type:       entity.NotificationTypePostLike,
		OccurredAt: at,
		Actor:      entity.ActorProfile{UserID: "a1", Nickname: "kim"},
		Metadata:   metadata.PostLikeMeta{PostID: "p1"},
	}))
}

func readEnvelope(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestConnect_ReceivesPushedNotification(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	c := e.dial(t, "u1")

	e.ingest(t, "e1", "u1", t0)

	got := readEnvelope(t, c)
	assert.Equal(t, "NOTIFICATION", got["type"])
	assert.Equal(t, "e1", got["eventId"])
	payload := got["payload"].(map[string]any)
	assert.Equal(t, "POST_LIKE", payload["notificationType"])
	assert.Equal(t, "kim liked your post.", payload["preview"].(map[string]any)["body"])
}

func TestConnect_Unauthenticated(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnect_AckIsStored(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	c := e.dial(t, "u1")

	require.NoError(t, c.WriteJSON(dto.ClientFrame{Type: dto.FrameAck, EventID: "e7"}))

	assert.Eventually(t, func() bool {
		v, err := e.redis.Get("notification:ack:u1")
		return err == nil && v == "e7"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConnect_ResyncReplaysNewerRecords(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	for i, id := range []string{"e1", "e2", "e3"} {
		e.ingest(t, id, "u1", t0.Add(time.Duration(i)*time.Minute))
	}
	c := e.dial(t, "u1")

	require.NoError(t, c.WriteJSON(dto.ClientFrame{Type: dto.FrameResync, AfterID: "e1", Limit: 10}))

	assert.Equal(t, "e2", readEnvelope(t, c)["eventId"])
	assert.Equal(t, "e3", readEnvelope(t, c)["eventId"])
}

func TestConnect_ResyncFallsBackToLastAck(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	for i, id := range []string{"e1", "e2"} {
		e.ingest(t, id, "u1", t0.Add(time.Duration(i)*time.Minute))
	}
	c := e.dial(t, "u1")

	require.NoError(t, c.WriteJSON(dto.ClientFrame{Type: dto.FrameAck, EventID: "e1"}))
	require.NoError(t, c.WriteJSON(dto.ClientFrame{Type: dto.FrameResync}))

	assert.Equal(t, "e2", readEnvelope(t, c)["eventId"])
}

func TestConnect_ResyncIsThrottled(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second, ResyncCooldown: time.Minute})
	for i, id := range []string{"e1", "e2", "e3"} {
		e.ingest(t, id, "u1", t0.Add(time.Duration(i)*time.Minute))
	}
	c := e.dial(t, "u1")

	require.NoError(t, c.WriteJSON(dto.ClientFrame{Type: dto.FrameResync, AfterID: "e2"}))
	assert.Equal(t, "e3", readEnvelope(t, c)["eventId"])

	require.NoError(t, c.WriteJSON(dto.ClientFrame{Type: dto.FrameResync, AfterID: "e1"}))
	e.ingest(t, "e4", "u1", t0.Add(time.Hour))

	assert.Equal(t, "e4", readEnvelope(t, c)["eventId"], "second RESYNC replayed nothing")
}

func TestResyncRows_Errors(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second, ResyncCooldown: time.Minute})
	e.ingest(t, "e1", "u1", t0)
	e.ingest(t, "e2", "u1", t0.Add(time.Minute))
	e.ingest(t, "x1", "u2", t0)
	ctx := context.Background()

	_, _, err := e.handler.resyncRows(ctx, "u2", dto.ClientFrame{Type: dto.FrameResync, AfterID: "e1"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	rows, after, err := e.handler.resyncRows(ctx, "u1", dto.ClientFrame{Type: dto.FrameResync, AfterID: "e1"})
	require.NoError(t, err)
	assert.Equal(t, "e1", after)
	require.Len(t, rows, 1)
	assert.Equal(t, "e2", rows[0].EventID)

	_, _, err = e.handler.resyncRows(ctx, "u1", dto.ClientFrame{Type: dto.FrameResync, AfterID: "e1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, apperror.MapErrorToStatus(err))
}

func TestResyncRows_NoPosition(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})

	rows, after, err := e.handler.resyncRows(context.Background(), "u1", dto.ClientFrame{Type: dto.FrameResync})
	require.NoError(t, err)
	assert.Empty(t, after)
	assert.Empty(t, rows)
}

func TestConnect_CloseRemovesSession(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	c := e.dial(t, "u1")
	require.Equal(t, 1, e.registry.LiveCount("u1"))

	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = c.Close()

	assert.Eventually(t, func() bool { return e.registry.Total() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestConnect_UnknownFrameKeepsConnection(t *testing.T) {
	e := newEnv(t, Config{WriteWait: time.Second})
	c := e.dial(t, "u1")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"WAVE"}`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	e.ingest(t, "e1", "u1", t0)
	assert.Equal(t, "e1", readEnvelope(t, c)["eventId"])
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, Config{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, h.checkOrigin(req))
}
