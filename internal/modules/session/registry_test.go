package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu       sync.Mutex
	open     bool
	sent     [][]byte
	pings    int
	reason   string
	sendErr  error
	pingErr  error
	panicked bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, open: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicked {
		panic("broken writer")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, p)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.open = false
		c.reason = reason
	}
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newIdleRegistry never ticks on its own; tests drive probe directly.
func newIdleRegistry(clock *fakeClock) *Registry {
	return NewRegistry(Config{PingInterval: time.Hour, PongTimeout: 45 * time.Second, Now: clock.Now})
}

func TestAdd_LiveCount(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	conn := newFakeConn("c1")

	s := r.Add("u1", conn)
	defer r.Remove("u1", s)

	assert.Equal(t, 1, r.LiveCount("u1"))
	assert.Equal(t, 0, r.LiveCount("u2"))
	assert.Equal(t, int64(1), r.Total())
}

func TestBroadcast_EvictsClosedConnection(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	conn := newFakeConn("c1")
	r.Add("u1", conn)

	require.NoError(t, conn.Close("peer went away"))

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, r.Broadcast("u1", []byte("hello")))
	})
	assert.Equal(t, 0, r.LiveCount("u1"))
	assert.Equal(t, int64(0), r.Total())
}

func TestBroadcast_FailureDoesNotStopOthers(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})

	bad := newFakeConn("bad")
	bad.sendErr = errors.New("broken pipe")
	crashing := newFakeConn("crash")
	crashing.panicked = true
	good := newFakeConn("good")

	r.Add("u1", bad)
	r.Add("u1", crashing)
	r.Add("u1", good)

	delivered := r.Broadcast("u1", []byte("hello"))

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, good.sentCount())
	assert.False(t, bad.IsOpen())
	assert.Equal(t, "send failed", bad.closeReason())
	assert.False(t, crashing.IsOpen())
	assert.Equal(t, 1, r.LiveCount("u1"))
	assert.Equal(t, int64(1), r.Total())
}

func TestBroadcast_UnknownUser(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	assert.Equal(t, 0, r.Broadcast("nobody", []byte("x")))
}

func TestRemove_Idempotent(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	s := r.Add("u1", newFakeConn("c1"))

	r.Remove("u1", s)
	r.Remove("u1", s)

	assert.Equal(t, int64(0), r.Total())
	assert.Equal(t, 0, r.LiveCount("u1"))

	// the emptied list is gone; a new add must land in a fresh one
	s2 := r.Add("u1", newFakeConn("c2"))
	assert.Equal(t, 1, r.LiveCount("u1"))
	r.Remove("u1", s2)
}

func TestProbe_TimeoutClosesAndRemoves(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newIdleRegistry(clock)
	conn := newFakeConn("c1")
	s := r.Add("u1", conn)

	clock.Advance(30 * time.Second)
	assert.True(t, r.probe(s))
	assert.Equal(t, 1, conn.pings)

	clock.Advance(16 * time.Second)
	assert.False(t, r.probe(s))

	assert.False(t, conn.IsOpen())
	assert.Equal(t, "pong timeout", conn.closeReason())
	assert.Equal(t, 0, r.LiveCount("u1"))
	assert.Equal(t, int64(0), r.Total())
}

func TestProbe_TouchKeepsAlive(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newIdleRegistry(clock)
	conn := newFakeConn("c1")
	s := r.Add("u1", conn)
	defer r.Remove("u1", s)

	for i := 0; i < 5; i++ {
		clock.Advance(30 * time.Second)
		s.Touch()
		assert.True(t, r.probe(s))
	}
	assert.True(t, conn.IsOpen())
	assert.True(t, clock.Now().Equal(s.LastLiveness()))
}

func TestProbe_PingFailure(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	conn := newFakeConn("c1")
	conn.pingErr = errors.New("write: broken pipe")
	s := r.Add("u1", conn)

	assert.False(t, r.probe(s))
	assert.False(t, conn.IsOpen())
	assert.Equal(t, 0, r.LiveCount("u1"))
}

func TestHeartbeat_EvictsSilentConnection(t *testing.T) {
	r := NewRegistry(Config{PingInterval: 5 * time.Millisecond, PongTimeout: 20 * time.Millisecond})
	conn := newFakeConn("c1")
	r.Add("u1", conn)

	assert.Eventually(t, func() bool {
		return !conn.IsOpen() && r.Total() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "pong timeout", conn.closeReason())
}

func TestShutdown(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	a, b := newFakeConn("a"), newFakeConn("b")
	r.Add("u1", a)
	r.Add("u2", b)

	r.Shutdown()

	assert.False(t, a.IsOpen())
	assert.False(t, b.IsOpen())
	assert.Equal(t, int64(0), r.Total())
}

func TestConcurrentAddRemoveBroadcast(t *testing.T) {
	r := newIdleRegistry(&fakeClock{now: time.Unix(1000, 0)})
	var sent atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				user := fmt.Sprintf("u%d", i%3)
				s := r.Add(user, newFakeConn(fmt.Sprintf("c%d-%d", w, i)))
				sent.Add(int64(r.Broadcast(user, []byte("x"))))
				r.Remove(user, s)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(0), r.Total())
	assert.Positive(t, sent.Load())
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, r.LiveCount(fmt.Sprintf("u%d", i)))
	}
}
