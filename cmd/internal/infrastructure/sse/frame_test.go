package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"waitlist/cmd/internal/domain/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEvent(t *testing.T) {
	frame, err := EncodeEvent(&events.ReferralUpdated{
		ActualReferralCount:  12,
		DisplayReferralCount: 10,
		Tier:                 "founder",
		Timestamp:            1700000000000,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"event: referral_updated\n"+
			`data: {"actualReferralCount":12,"displayReferralCount":10,"tier":"founder","timestamp":1700000000000}`+"\n\n",
		string(frame))
}

func TestEncodeHeartbeat(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, ": heartbeat 1700000000123\n\n", string(EncodeHeartbeat(at)))
	assert.Regexp(t, heartbeatFrame, string(EncodeHeartbeat(time.Now())))
}

func TestStreamSink_WriteFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	SetStreamHeaders(rec.Header())
	sink := NewStreamSink(rec, time.Second)

	require.NoError(t, sink.Write([]byte(": heartbeat 1\n\n")))

	assert.Equal(t, ": heartbeat 1\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStreamSink_Close(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewStreamSink(rec, 0)

	select {
	case <-sink.Done():
		t.Fatal("done before close")
	default:
	}

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	select {
	case <-sink.Done():
	default:
		t.Fatal("done not closed")
	}

	assert.ErrorIs(t, sink.Write([]byte("x")), errSinkClosed)
	assert.Empty(t, rec.Body.String())
}

func TestRegistry_DropsSinkClosedByHandler(t *testing.T) {
	r := quietRegistry()
	defer r.CloseAll()

	sink := NewStreamSink(httptest.NewRecorder(), 0)
	_, err := r.Register(4, sink, "")
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	assert.Equal(t, 0, r.Broadcast(4, &events.ReferralUpdated{}))
	assert.Equal(t, 0, r.ConnectionCount(4))
}

func TestClearStreamHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Request-Id", "abc")
	SetStreamHeaders(h)
	ClearStreamHeaders(h)

	assert.Empty(t, h.Get("Content-Type"))
	assert.Empty(t, h.Get("X-Accel-Buffering"))
	assert.Equal(t, "abc", h.Get("X-Request-Id"))
}
