package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"stakerchain/core/events"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsDefaultReplay = 32
	wsMaxReplay     = 1024
)

var errSubscriberLagged = errors.New("subscriber lagged")

// wsEvent is the frame written for every streamed record.
type wsEvent struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// handleEventsWS streams staker events. The optional backlog query parameter
// replays that many recent records before live delivery starts.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	backlog := wsDefaultReplay
	if raw := r.URL.Query().Get("backlog"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "backlog must be a non-negative integer", http.StatusBadRequest)
			return
		}
		backlog = n
	}
	if backlog > wsMaxReplay {
		backlog = wsMaxReplay
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Clients never send frames; CloseRead cancels ctx once they hang up.
	ctx := conn.CloseRead(r.Context())
	err = s.streamEvents(ctx, conn, backlog)
	switch {
	case errors.Is(err, errSubscriberLagged):
		_ = conn.Close(websocket.StatusPolicyViolation, errSubscriberLagged.Error())
	case err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil:
		s.logger.Warn("event stream aborted",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()))
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, backlog int) error {
	past, updates, cancel := s.events.Subscribe(backlog, 0)
	defer cancel()

	for _, rec := range past {
		if err := writeEvent(ctx, conn, rec); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return errSubscriberLagged
			}
			if err := writeEvent(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, rec events.Record) error {
	frame := wsEvent{Sequence: rec.Sequence}
	if rec.Event != nil {
		frame.Type = rec.Event.Type
		frame.Attributes = rec.Event.Attributes
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
