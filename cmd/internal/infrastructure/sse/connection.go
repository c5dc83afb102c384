package sse

import (
	"errors"
	"sync"
	"time"
)

var errConnectionClosed = errors.New("connection is closed")

// Sink is the transport end of a connection, usually one browser tab.
type Sink interface {
	Write(p []byte) error
	Close() error
}

// Connection is one live event stream owned by a single user.
//
// Only the Registry writes to or closes a Connection.
type Connection struct {
	ID            string
	UserID        int64
	CorrelationID string
	CreatedAt     time.Time

	sink Sink

	// mu serializes sink writes and guards everything below.
	mu           sync.Mutex
	lastActivity time.Time
	timers       *timers
	stopped      bool
}

// timers pairs the heartbeat and inactivity timers of a connection so
// they are always armed and cancelled together.
type timers struct {
	heartbeat *time.Timer
	idle      *time.Timer
}

func (t *timers) stop() {
	t.heartbeat.Stop()
	t.idle.Stop()
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// start arms both timers. The callbacks run on their own goroutines.
func (c *Connection) start(heartbeatEvery, idleAfter time.Duration, onHeartbeat, onIdle func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.timers = &timers{
		heartbeat: time.AfterFunc(heartbeatEvery, onHeartbeat),
		idle:      time.AfterFunc(idleAfter, onIdle),
	}
}

// write sends one frame. A successful write counts as activity and pushes
// the inactivity deadline back.
func (c *Connection) write(frame []byte, idleAfter time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errConnectionClosed
	}

	if err := c.sink.Write(frame); err != nil {
		return err
	}

	c.lastActivity = time.Now()
	if c.timers != nil {
		c.timers.idle.Reset(idleAfter)
	}
	return nil
}

// rearmHeartbeat schedules the next heartbeat unless the connection was
// torn down while the current one was being written.
func (c *Connection) rearmHeartbeat(every time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.timers == nil {
		return
	}
	c.timers.heartbeat.Reset(every)
}

// teardown cancels both timers in one step. It is safe to call more than once.
func (c *Connection) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	if c.timers != nil {
		c.timers.stop()
	}
}

func (c *Connection) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}
