// Package session tracks the live push connections of every user in this
// process and keeps them honest with a per-connection heartbeat.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"anoa.com/notifyhub/internal/logging"
	"anoa.com/notifyhub/internal/metrics"
)

const (
	DefaultPingInterval = 15 * time.Second
	DefaultPongTimeout  = 45 * time.Second
)

// Conn is one client connection as seen by the registry.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Ping() error
	Close(reason string) error
	IsOpen() bool
}

type Config struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	// Now is the clock used for liveness. Defaults to time.Now.
	Now func() time.Time
}

type Session struct {
	userID       string
	conn         Conn
	lastLiveness atomic.Int64
	removed      atomic.Bool
	cancel       context.CancelFunc
	now          func() time.Time
}

func (s *Session) UserID() string { return s.userID }
func (s *Session) Conn() Conn     { return s.conn }

// Touch records a liveness signal from the peer.
func (s *Session) Touch() {
	s.lastLiveness.Store(s.now().UnixNano())
}

func (s *Session) LastLiveness() time.Time {
	return time.Unix(0, s.lastLiveness.Load())
}

type userSessions struct {
	mu       sync.Mutex
	sessions []*Session
	// dead is set once the list emptied and left the map. Adders that still
	// hold it must load a fresh one.
	dead bool
}

type Registry struct {
	cfg   Config
	users sync.Map // userID -> *userSessions
	total atomic.Int64
}

func NewRegistry(cfg Config) *Registry {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = DefaultPongTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{cfg: cfg}
}

// Add registers conn for userID and starts its heartbeat.
func (r *Registry) Add(userID string, conn Conn) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{userID: userID, conn: conn, cancel: cancel, now: r.cfg.Now}
	s.Touch()

	for {
		v, _ := r.users.LoadOrStore(userID, &userSessions{})
		us := v.(*userSessions)

		us.mu.Lock()
		if us.dead {
			us.mu.Unlock()
			continue
		}
		us.sessions = append(us.sessions, s)
		us.mu.Unlock()
		break
	}

	metrics.WebSocketSessions.Set(float64(r.total.Add(1)))
	logging.Debug().Str("user_id", userID).Str("conn_id", conn.ID()).Msg("session registered")

	go r.heartbeat(ctx, s)
	return s
}

// Remove unregisters s and stops its heartbeat. Calling it again is a no-op.
func (r *Registry) Remove(userID string, s *Session) {
	if !s.removed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()

	if v, ok := r.users.Load(userID); ok {
		us := v.(*userSessions)
		us.mu.Lock()
		kept := make([]*Session, 0, len(us.sessions))
		for _, other := range us.sessions {
			if other != s {
				kept = append(kept, other)
			}
		}
		us.sessions = kept
		if len(kept) == 0 {
			us.dead = true
			r.users.CompareAndDelete(userID, us)
		}
		us.mu.Unlock()
	}

	metrics.WebSocketSessions.Set(float64(r.total.Add(-1)))
	logging.Debug().Str("user_id", userID).Str("conn_id", s.conn.ID()).Msg("session removed")
}

func (r *Registry) snapshot(userID string) []*Session {
	v, ok := r.users.Load(userID)
	if !ok {
		return nil
	}
	us := v.(*userSessions)
	us.mu.Lock()
	defer us.mu.Unlock()
	return append([]*Session(nil), us.sessions...)
}

// Broadcast sends payload to every live connection of userID and returns how
// many accepted it. Closed or failing connections are evicted and skipped.
func (r *Registry) Broadcast(userID string, payload []byte) int {
	delivered := 0
	for _, s := range r.snapshot(userID) {
		if !s.conn.IsOpen() {
			r.Remove(userID, s)
			continue
		}
		if err := send(s.conn, payload); err != nil {
			metrics.PushFailed.Inc()
			logging.Warn().Err(err).Str("user_id", userID).Str("conn_id", s.conn.ID()).Msg("push failed, evicting session")
			_ = s.conn.Close("send failed")
			r.Remove(userID, s)
			continue
		}
		metrics.PushSent.Inc()
		delivered++
	}
	return delivered
}

func send(conn Conn, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send panicked: %v", p)
		}
	}()
	return conn.Send(payload)
}

// LiveCount is the number of registered connections of userID that report open.
func (r *Registry) LiveCount(userID string) int {
	n := 0
	for _, s := range r.snapshot(userID) {
		if s.conn.IsOpen() {
			n++
		}
	}
	return n
}

// Total is the number of registered sessions across all users.
func (r *Registry) Total() int64 {
	return r.total.Load()
}

// Shutdown closes and removes every session.
func (r *Registry) Shutdown() {
	r.users.Range(func(key, _ any) bool {
		userID := key.(string)
		for _, s := range r.snapshot(userID) {
			_ = s.conn.Close("server shutdown")
			r.Remove(userID, s)
		}
		return true
	})
}

func (r *Registry) heartbeat(ctx context.Context, s *Session) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.probe(s) {
				return
			}
		}
	}
}

// probe runs one heartbeat tick and reports whether the session survived it.
func (r *Registry) probe(s *Session) bool {
	if s.removed.Load() {
		return false
	}
	if !s.conn.IsOpen() {
		r.Remove(s.userID, s)
		return false
	}

	idle := r.cfg.Now().Sub(s.LastLiveness())
	if idle > r.cfg.PongTimeout {
		metrics.HeartbeatTimeouts.Inc()
		logging.Info().Str("user_id", s.userID).Str("conn_id", s.conn.ID()).Dur("idle", idle).Msg("heartbeat timeout, closing session")
		_ = s.conn.Close("pong timeout")
		r.Remove(s.userID, s)
		return false
	}

	if err := s.conn.Ping(); err != nil {
		logging.Warn().Err(err).Str("user_id", s.userID).Str("conn_id", s.conn.ID()).Msg("ping failed, closing session")
		_ = s.conn.Close("ping failed")
		r.Remove(s.userID, s)
		return false
	}
	return true
}
