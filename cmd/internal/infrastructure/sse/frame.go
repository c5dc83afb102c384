package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"waitlist/cmd/internal/domain/events"
)

// EncodeEvent frames evt as a Server-Sent Event:
//
//	event: <type>
//	data: <json>
//	<blank line>
func EncodeEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", evt.GetType(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(payload) + 32)
	buf.WriteString("event: ")
	buf.WriteString(string(evt.GetType()))
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// EncodeHeartbeat returns a comment frame. Comment frames never reach
// EventSource listeners, they only keep proxies from closing the stream.
func EncodeHeartbeat(at time.Time) []byte {
	return []byte(": heartbeat " + strconv.FormatInt(at.UnixMilli(), 10) + "\n\n")
}

// SetStreamHeaders prepares a response for event streaming.
var streamHeaders = [][2]string{
	{"Content-Type", "text/event-stream"},
	{"Cache-Control", "no-cache"},
	{"Connection", "keep-alive"},
	// nginx buffers proxied responses unless told otherwise
	{"X-Accel-Buffering", "no"},
}

func SetStreamHeaders(h http.Header) {
	for _, kv := range streamHeaders {
		h.Set(kv[0], kv[1])
	}
}

// ClearStreamHeaders undoes SetStreamHeaders on a response that was never
// committed, so it can still carry a plain error body.
func ClearStreamHeaders(h http.Header) {
	for _, kv := range streamHeaders {
		h.Del(kv[0])
	}
}
