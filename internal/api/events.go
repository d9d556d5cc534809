// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsReadLimit  = 4096
)

// Event message types.
const (
	MsgState = "state"
	MsgError = "error"
)

// WSMessage is one frame on the events socket.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsCommand is what a viewer may send: stop, retry or volume.
type wsCommand struct {
	Type   string   `json:"type"`
	Volume *float64 `json:"volume,omitempty"`
	Muted  *bool    `json:"muted,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := make(map[string]bool, len(s.deps.Stack.AllowedOrigins))
	for _, o := range s.deps.Stack.AllowedOrigins {
		allowed[o] = true
	}
	allowAll := len(allowed) == 0 || allowed["*"]
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || allowed[origin] {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// GET /playback/{id}/events streams state events; the current state is sent
// first. Viewers may send commands on the same socket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entry(w, r)
	if !ok {
		return
	}
	ctx := xglog.ContextWithPlaybackID(r.Context(), e.ID)
	logger := xglog.WithComponentFromContext(ctx, "api")

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		logger.Debug().Err(err).Str(xglog.FieldEvent, "playback.ws_upgrade_failed").Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := e.Subscribe()
	defer cancel()

	replies := make(chan WSMessage, 8)
	readDone := make(chan struct{})
	go s.readCommands(conn, e, replies, readDone, logger)

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	logger.Debug().Str(xglog.FieldEvent, "playback.ws_connected").Msg("event subscriber connected")
	for {
		select {
		case <-readDone:
			return
		case ev, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := writeMessage(conn, MsgState, ev); err != nil {
				return
			}
		case msg := <-replies:
			if err := writeFrame(conn, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readCommands owns the read side of conn until it fails.
func (s *Server) readCommands(conn *websocket.Conn, e *orchestrator.Entry, replies chan<- WSMessage, done chan<- struct{}, logger zerolog.Logger) {
	defer close(done)
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug().Err(err).Str(xglog.FieldEvent, "playback.ws_read_failed").Msg("event socket closed")
			}
			return
		}
		if err := s.applyCommand(e, cmd); err != nil {
			payload, _ := json.Marshal(ErrorBody{Error: commandCode(err), Detail: err.Error()})
			select {
			case replies <- WSMessage{Type: MsgError, Payload: payload}:
			default:
			}
		}
	}
}

var errUnknownCommand = errors.New("unknown command")

func (s *Server) applyCommand(e *orchestrator.Entry, cmd wsCommand) error {
	switch cmd.Type {
	case "stop":
		e.Stop()
	case "retry":
		return e.Retry(context.Background())
	case "volume":
		applyVolume(e.Orchestrator, volumeRequest{Volume: cmd.Volume, Muted: cmd.Muted})
	default:
		return errUnknownCommand
	}
	return nil
}

func commandCode(err error) string {
	switch {
	case errors.Is(err, errUnknownCommand):
		return CodeBadRequest
	case errors.Is(err, orchestrator.ErrNotFailed), errors.Is(err, orchestrator.ErrNoTarget):
		return "not_failed"
	default:
		return playback.Code(err)
	}
}

func writeMessage(conn *websocket.Conn, typ string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFrame(conn, WSMessage{Type: typ, Payload: payload})
}

func writeFrame(conn *websocket.Conn, msg WSMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(msg)
}
