package sse

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

var errSinkClosed = errors.New("stream sink is closed")

// StreamSink writes frames to an HTTP response that stays open.
//
// Writes after Close fail instead of touching the ResponseWriter, which
// must not be used once the owning handler returns.
type StreamSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewStreamSink(w http.ResponseWriter, writeTimeout time.Duration) *StreamSink {
	return &StreamSink{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (s *StreamSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed
	}

	if s.writeTimeout > 0 {
		// Not every writer supports deadlines (httptest.ResponseRecorder does not).
		err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}

	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Close marks the sink closed and releases whoever waits on Done.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// Done is closed once the sink is closed, by the registry or by the handler.
func (s *StreamSink) Done() <-chan struct{} {
	return s.done
}
