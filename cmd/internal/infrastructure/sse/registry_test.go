package sse

import (
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"waitlist/cmd/internal/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var heartbeatFrame = regexp.MustCompile(`^: heartbeat \d+\n\n$`)

// fakeSink records frames. failFrom makes every write starting at that
// (0-based) index fail; -1 never fails.
type fakeSink struct {
	mu       sync.Mutex
	frames   []string
	failFrom int
	closed   int
}

func newFakeSink() *fakeSink {
	return &fakeSink{failFrom: -1}
}

func newFailingSink(failFrom int) *fakeSink {
	return &fakeSink{failFrom: failFrom}
}

func (s *fakeSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFrom >= 0 && len(s.frames) >= s.failFrom {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, string(p))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSink) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *fakeSink) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) CountFrames(prefix string) int {
	n := 0
	for _, f := range s.Frames() {
		if strings.HasPrefix(f, prefix) {
			n++
		}
	}
	return n
}

// quietRegistry never heartbeats or expires during a test.
func quietRegistry() *Registry {
	return NewRegistry(Options{HeartbeatInterval: time.Hour, InactivityTimeout: time.Hour})
}

func TestRegistry_RegisterSendsConnected(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()
	sink := newFakeSink()

	connID, err := r.Register(7, sink, "req-1")
	require.NoError(t, err)
	assert.NotEmpty(t, connID)

	assert.Equal(t, 1, r.ConnectionCount(7))
	assert.Equal(t, 1, r.TotalConnections())
	assert.Equal(t, 1, r.ActiveUserCount())

	frames := sink.Frames()
	require.Len(t, frames, 1)
	assert.True(t, strings.HasPrefix(frames[0], "event: connected\ndata: {"))
	assert.Contains(t, frames[0], `"connectionId":"`+connID+`"`)
}

func TestRegistry_RegisterUniqueIDs(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()

	first, err := r.Register(1, newFakeSink(), "")
	require.NoError(t, err)
	second, err := r.Register(1, newFakeSink(), "")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, r.ConnectionCount(1))
	assert.Equal(t, 1, r.ActiveUserCount())
}

func TestRegistry_UnregisterPrunesUser(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()
	sink := newFakeSink()

	connID, err := r.Register(7, sink, "")
	require.NoError(t, err)

	r.Unregister(7, connID)
	assert.Equal(t, 0, r.ConnectionCount(7))
	assert.Equal(t, 0, r.TotalConnections())
	assert.Equal(t, 0, r.ActiveUserCount())
	assert.Equal(t, 0, sink.Closed(), "caller-initiated unregister must not close the sink")

	// idempotent, and unknown ids are ignored
	r.Unregister(7, connID)
	r.Unregister(8, "missing")
	assert.Equal(t, 0, r.TotalConnections())
}

func TestRegistry_RegisterInitialWriteFailure(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()
	sink := newFailingSink(0)

	connID, err := r.Register(3, sink, "")
	assert.Error(t, err)
	assert.Empty(t, connID)
	assert.Equal(t, 0, r.ConnectionCount(3))
	assert.Equal(t, 0, r.ActiveUserCount())
	assert.Equal(t, 1, sink.Closed())
}

func TestRegistry_BroadcastSkipsBrokenConnection(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()

	healthy1, healthy2 := newFakeSink(), newFakeSink()
	broken := newFailingSink(1) // accepts "connected", then fails

	for _, sink := range []*fakeSink{healthy1, broken, healthy2} {
		_, err := r.Register(42, sink, "")
		require.NoError(t, err)
	}
	require.Equal(t, 3, r.ConnectionCount(42))

	delivered := r.Broadcast(42, &events.ReferralUpdated{ActualReferralCount: 1, DisplayReferralCount: 1, Tier: "normal"})

	assert.Equal(t, 2, delivered)
	assert.Equal(t, 2, r.ConnectionCount(42))
	assert.Equal(t, 1, healthy1.CountFrames("event: referral_updated\n"))
	assert.Equal(t, 1, healthy2.CountFrames("event: referral_updated\n"))
	assert.Equal(t, 1, broken.Closed())
	assert.Equal(t, 0, healthy1.Closed())
}

func TestRegistry_BroadcastOnlyReachesOwner(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()

	mine, theirs := newFakeSink(), newFakeSink()
	_, err := r.Register(1, mine, "")
	require.NoError(t, err)
	_, err = r.Register(2, theirs, "")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Broadcast(1, &events.MilestoneReached{Milestone: 3}))
	assert.Equal(t, 1, mine.CountFrames("event: milestone_reached\n"))
	assert.Equal(t, 0, theirs.CountFrames("event: milestone_reached\n"))
}

func TestRegistry_BroadcastWithoutConnections(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()

	assert.Equal(t, 0, r.Broadcast(99, &events.ReferralUpdated{}))
	assert.Equal(t, 0, r.ActiveUserCount())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: 5 * time.Millisecond, InactivityTimeout: 20 * time.Millisecond})

	sinks := []*fakeSink{newFakeSink(), newFakeSink(), newFakeSink()}
	for i, sink := range sinks {
		_, err := r.Register(int64(i%2), sink, "")
		require.NoError(t, err)
	}

	r.CloseAll()
	assert.Equal(t, 0, r.TotalConnections())
	assert.Equal(t, 0, r.ActiveUserCount())

	written := make([]int, len(sinks))
	for i, sink := range sinks {
		assert.Equal(t, 1, sink.Closed())
		written[i] = sink.FrameCount()
	}

	// no heartbeat or timeout may fire afterwards
	time.Sleep(60 * time.Millisecond)
	for i, sink := range sinks {
		assert.Equal(t, written[i], sink.FrameCount())
		assert.Equal(t, 1, sink.Closed())
	}
	assert.Equal(t, 0, r.TotalConnections())

	_, err := r.Register(5, newFakeSink(), "")
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.Equal(t, 0, r.TotalConnections())

	// a second CloseAll is harmless
	r.CloseAll()
}

func TestRegistry_HeartbeatWritesComment(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: 10 * time.Millisecond, InactivityTimeout: time.Hour})
	defer r.CloseAll()
	sink := newFakeSink()

	_, err := r.Register(1, sink, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sink.CountFrames(": heartbeat ") >= 2
	}, time.Second, 5*time.Millisecond)

	for _, f := range sink.Frames()[1:] {
		assert.Regexp(t, heartbeatFrame, f)
	}
}

func TestRegistry_HeartbeatKeepsConnectionAlive(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: 10 * time.Millisecond, InactivityTimeout: 50 * time.Millisecond})
	defer r.CloseAll()
	sink := newFakeSink()

	_, err := r.Register(1, sink, "")
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, r.ConnectionCount(1))
	assert.Equal(t, 0, sink.Closed())
}

func TestRegistry_HeartbeatFailureRemovesConnection(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: 10 * time.Millisecond, InactivityTimeout: time.Hour})
	defer r.CloseAll()
	sink := newFailingSink(1)

	_, err := r.Register(1, sink, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return r.ConnectionCount(1) == 0 && sink.Closed() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.ActiveUserCount())
}

func TestRegistry_InactivityTimeout(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: time.Hour, InactivityTimeout: 30 * time.Millisecond})
	defer r.CloseAll()
	sink := newFakeSink()

	_, err := r.Register(1, sink, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return r.ConnectionCount(1) == 0 && sink.Closed() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.ActiveUserCount())
}

func TestRegistry_UnregisterCancelsBothTimers(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: 10 * time.Millisecond, InactivityTimeout: 30 * time.Millisecond})
	defer r.CloseAll()
	sink := newFakeSink()

	connID, err := r.Register(1, sink, "")
	require.NoError(t, err)
	r.Unregister(1, connID)

	written := sink.FrameCount()
	assert.Never(t, func() bool {
		return sink.FrameCount() != written || sink.Closed() != 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRegistry_ConcurrentBroadcastAndUnregister(t *testing.T) {
	r := NewRegistry(Options{HeartbeatInterval: 2 * time.Millisecond, InactivityTimeout: time.Hour})
	defer r.CloseAll()

	ids := make([]string, 20)
	for i := range ids {
		id, err := r.Register(1, newFakeSink(), "")
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			r.Broadcast(1, &events.ReferralUpdated{ActualReferralCount: int64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			r.Unregister(1, id)
		}
	}()
	wg.Wait()

	assert.Equal(t, 0, r.ConnectionCount(1))
	assert.Equal(t, 0, r.ActiveUserCount())
}
