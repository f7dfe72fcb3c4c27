package httpserver

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/events"
	"github.com/phxgg/kickbridge/internal/metrics"
	"github.com/phxgg/kickbridge/internal/platform/logging"
)

const (
	eventWriteTimeout = 5 * time.Second
	eventPingInterval = 30 * time.Second
)

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handleEvents upgrades to a websocket and streams the subject's routed
// webhook events. One subscriber per subject: a second connection replaces
// the first.
func (s *Server) handleEvents(c echo.Context) error {
	subjectID, _ := c.Get(ctxKeySubjectID).(string)
	log := logging.WithSubject(subjectID)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Info("Websocket upgrade failed", "error", err)
		return nil
	}

	sub := events.NewSubscriber()
	s.registry.Register(subjectID, sub)
	metrics.EventSubscribers.Set(float64(s.registry.Len()))
	log.Info("Event subscriber connected")

	defer func() {
		s.registry.Deregister(subjectID, sub)
		metrics.EventSubscribers.Set(float64(s.registry.Len()))
		conn.Close()
		log.Info("Event subscriber disconnected")
	}()

	// Reads only surface disconnects; the client is not expected to send.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Replaced by a newer connection for the same subject.
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(wireEvent{Type: string(ev.Type), Payload: ev.Payload}); err != nil {
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-readClosed:
			return nil
		}
	}
}
