package sse

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"waitlist/cmd/internal/domain/events"
	"waitlist/cmd/internal/metrics"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultInactivityTimeout = 5 * time.Minute
)

// ErrRegistryClosed is returned by Register once CloseAll has run.
var ErrRegistryClosed = errors.New("connection registry is closed")

type Options struct {
	// HeartbeatInterval is how often an idle stream gets a keep-alive comment.
	HeartbeatInterval time.Duration
	// InactivityTimeout drops a connection after this long without a successful write.
	InactivityTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}
	return o
}

// Registry owns every live event stream of this process, grouped by user.
//
// A registered connection either keeps receiving events or is removed
// completely: out of the map, both timers cancelled, and (when the removal
// was not requested by the caller) its sink closed. The registry lock is
// never held while writing to a sink or while taking a connection lock.
type Registry struct {
	opts Options

	mu     sync.RWMutex
	users  map[int64]map[string]*Connection
	total  int
	closed bool
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:  opts.withDefaults(),
		users: make(map[int64]map[string]*Connection),
	}
}

// Register adds sink as a new connection of userID, arms its heartbeat and
// inactivity timers and sends the initial connected event.
//
// If that first write fails the connection is removed again, the sink is
// closed and the error is returned. After CloseAll, Register returns
// ErrRegistryClosed and leaves the sink to the caller.
func (r *Registry) Register(userID int64, sink Sink, correlationID string) (string, error) {
	now := time.Now()
	conn := &Connection{
		ID:            uuid.NewString(),
		UserID:        userID,
		CorrelationID: correlationID,
		CreatedAt:     now,
		sink:          sink,
		lastActivity:  now,
	}

	if err := r.add(conn); err != nil {
		return "", err
	}

	conn.start(r.opts.HeartbeatInterval, r.opts.InactivityTimeout,
		func() { r.heartbeat(conn) },
		func() { r.expire(conn) },
	)

	frame, err := EncodeEvent(&events.Connected{
		ConnectionID: conn.ID,
		Timestamp:    now.UnixMilli(),
	})
	if err == nil {
		err = conn.write(frame, r.opts.InactivityTimeout)
	}

	if err != nil {
		r.drop(conn, metrics.ReasonConnect)
		return "", fmt.Errorf("failed to open stream %s for user %d: %w", conn.ID, userID, err)
	}

	log.Debugf("stream %s opened for user %d (correlation %s)", conn.ID, userID, correlationID)
	return conn.ID, nil
}

// Unregister removes a connection the caller is done with. The sink is not
// closed, that stays with the caller. Unknown ids are ignored.
func (r *Registry) Unregister(userID int64, connID string) {
	r.mu.Lock()
	conn := r.users[userID][connID]
	removed := conn != nil && r.removeLocked(conn)
	r.mu.Unlock()

	if removed {
		conn.teardown()
		log.Debugf("stream %s of user %d unregistered", connID, userID)
	}
}

// Broadcast writes evt to every live connection of userID and returns how
// many received it. Connections failing the write are dropped, the others
// still get the event. A user without connections is simply offline.
func (r *Registry) Broadcast(userID int64, evt events.Event) int {
	frame, err := EncodeEvent(evt)
	if err != nil {
		log.Errorf("failed to broadcast to user %d: %v", userID, err)
		return 0
	}

	conns := r.snapshot(userID)
	if len(conns) == 0 {
		log.Debugf("no open streams for user %d, skipping %s", userID, evt.GetType())
		return 0
	}

	delivered := 0
	for _, conn := range conns {
		if err := conn.write(frame, r.opts.InactivityTimeout); err != nil {
			if !errors.Is(err, errConnectionClosed) {
				log.Warnf("failed to write %s to stream %s of user %d: %v", evt.GetType(), conn.ID, userID, err)
				r.drop(conn, metrics.ReasonWrite)
			}
			continue
		}
		delivered++
	}

	metrics.StreamEventsSent.WithLabelValues(string(evt.GetType())).Add(float64(delivered))
	return delivered
}

func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Registry) ActiveUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// CloseAll tears down every connection and refuses new ones. Timer callbacks
// already in flight find their connection stopped and do nothing.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Connection, 0, r.total)
	for _, set := range r.users {
		for _, conn := range set {
			all = append(all, conn)
		}
	}
	r.users = make(map[int64]map[string]*Connection)
	r.total = 0
	r.mu.Unlock()

	for _, conn := range all {
		conn.teardown()
		if err := conn.sink.Close(); err != nil {
			log.Debugf("failed to close stream %s: %v", conn.ID, err)
		}
	}

	metrics.StreamConnectionsActive.Sub(float64(len(all)))
	metrics.StreamUsersActive.Set(0)
	log.Infof("closed %d event streams", len(all))
}

func (r *Registry) add(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	set, ok := r.users[conn.UserID]
	if !ok {
		set = make(map[string]*Connection)
		r.users[conn.UserID] = set
	}
	set[conn.ID] = conn
	r.total++

	metrics.StreamConnectionsTotal.Inc()
	metrics.StreamConnectionsActive.Inc()
	metrics.StreamUsersActive.Set(float64(len(r.users)))
	return nil
}

// removeLocked deletes conn from the map and prunes an emptied user entry.
// It reports false when conn was no longer registered. Callers hold r.mu.
func (r *Registry) removeLocked(conn *Connection) bool {
	set, ok := r.users[conn.UserID]
	if !ok || set[conn.ID] != conn {
		return false
	}

	delete(set, conn.ID)
	if len(set) == 0 {
		delete(r.users, conn.UserID)
	}
	r.total--

	metrics.StreamConnectionsActive.Dec()
	metrics.StreamUsersActive.Set(float64(len(r.users)))
	return true
}

// drop removes a connection on the registry's own initiative and closes its sink.
// Only the caller that actually removed it from the map tears it down.
func (r *Registry) drop(conn *Connection, reason string) {
	r.mu.Lock()
	removed := r.removeLocked(conn)
	r.mu.Unlock()

	if !removed {
		return
	}

	conn.teardown()
	if err := conn.sink.Close(); err != nil {
		log.Debugf("failed to close stream %s: %v", conn.ID, err)
	}
	metrics.StreamDeliveryFailures.WithLabelValues(reason).Inc()
}

func (r *Registry) snapshot(userID int64) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	conns := make([]*Connection, 0, len(set))
	for _, conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) heartbeat(conn *Connection) {
	err := conn.write(EncodeHeartbeat(time.Now()), r.opts.InactivityTimeout)
	if err != nil {
		if !errors.Is(err, errConnectionClosed) {
			log.Warnf("heartbeat failed for stream %s of user %d: %v", conn.ID, conn.UserID, err)
			r.drop(conn, metrics.ReasonHeartbeat)
		}
		return
	}
	conn.rearmHeartbeat(r.opts.HeartbeatInterval)
}

func (r *Registry) expire(conn *Connection) {
	// A write may have pushed the deadline back while this callback was starting.
	if conn.isStopped() || time.Since(conn.LastActivity()) < r.opts.InactivityTimeout {
		return
	}
	log.Infof("stream %s of user %d timed out after %s without activity", conn.ID, conn.UserID, r.opts.InactivityTimeout)
	r.drop(conn, metrics.ReasonTimeout)
}
