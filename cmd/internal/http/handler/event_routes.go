package handler

import (
	"errors"
	"net/http"
	"time"

	"waitlist/cmd/internal/contract"
	"waitlist/cmd/internal/infrastructure/sse"
	"waitlist/cmd/internal/utils"
	"waitlist/cmd/internal/utils/apierror"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type StreamRegistry interface {
	Register(userID int64, sink sse.Sink, correlationID string) (string, error)
	Unregister(userID int64, connID string)
	TotalConnections() int
	ActiveUserCount() int
}

type DefaultEventRoute struct {
	Registry     StreamRegistry
	WriteTimeout time.Duration
}

func NewEventRoute(registry StreamRegistry, writeTimeout time.Duration) *DefaultEventRoute {
	return &DefaultEventRoute{Registry: registry, WriteTimeout: writeTimeout}
}

// Stream keeps the request open as an event stream for the session user.
// It returns once the client goes away or the registry drops the stream.
func (h *DefaultEventRoute) Stream(c echo.Context) error {
	user, cerr := utils.GetUserFromContext(c)
	if cerr != nil {
		return c.JSON(cerr.Code(), cerr)
	}

	res := c.Response()
	if _, ok := res.Writer.(http.Flusher); !ok {
		return c.JSON(http.StatusInternalServerError, apierror.StreamingUnsupportedError)
	}

	// Nothing is written until Register sends the connected event, so a
	// closed registry can still be answered with JSON.
	sse.SetStreamHeaders(res.Header())
	sink := sse.NewStreamSink(res, h.WriteTimeout)

	connID, err := h.Registry.Register(user.ID, sink, correlationID(c))
	if errors.Is(err, sse.ErrRegistryClosed) {
		sse.ClearStreamHeaders(res.Header())
		return c.JSON(http.StatusServiceUnavailable, apierror.StreamUnavailableError)
	}

	if err != nil {
		// The stream is already committed, there is nobody left to answer.
		log.Warnf("failed to open event stream for user %d: %v", user.ID, err)
		return nil
	}

	select {
	case <-c.Request().Context().Done():
		h.Registry.Unregister(user.ID, connID)
		_ = sink.Close()
		log.Debugf("client closed event stream %s of user %d", connID, user.ID)
	case <-sink.Done():
		// dropped by the registry (write failure, timeout or shutdown)
	}
	return nil
}

func (h *DefaultEventRoute) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, &contract.EventStatsResponse{
		TotalConnections: h.Registry.TotalConnections(),
		ActiveUsers:      h.Registry.ActiveUserCount(),
	})
}

func correlationID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	if id := c.Request().Header.Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}
