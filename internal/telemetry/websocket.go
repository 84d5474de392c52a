package telemetry

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// writeJSONFrame is a package variable so tests can intercept send
// failures without a live network round trip.
var writeJSONFrame = func(conn *websocket.Conn, deadline time.Time, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// handleWebSocket implements the §4.7 handshake/bootstrap/forward loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	handshakeDone := make(chan *websocket.Conn, 1)
	handshakeErr := make(chan error, 1)

	go func() {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			handshakeErr <- err
			return
		}
		handshakeDone <- conn
	}()

	var conn *websocket.Conn
	select {
	case conn = <-handshakeDone:
	case err := <-handshakeErr:
		s.log.Warn().Err(err).Msg("websocket handshake failed")
		return
	case <-time.After(sendBound):
		s.log.Warn().Msg("websocket handshake exceeded 10s bound")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer sub.Close()

	if err := s.sendBootstrap(conn); err != nil {
		s.closeWithCode(conn, err)
		return
	}

	s.forwardLoop(conn, sub)
}

func (s *Server) sendBootstrap(conn *websocket.Conn) error {
	bootstrap := domain.Event{
		Type:       domain.EventBootstrap,
		Containers: s.containers.Snapshot(),
		Incidents:  s.incidents.Snapshot(),
	}
	return writeJSONFrame(conn, time.Now().Add(sendBound), bootstrap)
}

// forwardLoop relays every bus event to the client with a per-send 10s
// bound. A send timeout is logged and skipped, not fatal; client
// disconnect terminates the loop cleanly (§4.7 item 3).
func (s *Server) forwardLoop(conn *websocket.Conn, sub interface{ Events() <-chan domain.Event }) {
	for event := range sub.Events() {
		err := writeJSONFrame(conn, time.Now().Add(sendBound), event)
		if err == nil {
			continue
		}
		if isTimeout(err) {
			s.log.Warn().Msg("websocket send timed out, skipping event")
			continue
		}
		if isDisconnect(err) {
			return
		}
		s.log.Error().Err(err).Msg("websocket send failed")
		s.closeWithCode(conn, err)
		return
	}
}

func (s *Server) closeWithCode(conn *websocket.Conn, cause error) {
	code := websocket.CloseInternalServerErr
	if isTimeout(cause) {
		code = 1013
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, cause.Error()),
		time.Now().Add(time.Second))
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDisconnect(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) || errors.Is(err, websocket.ErrCloseSent)
}
