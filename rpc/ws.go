package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"dlanstake/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEvents streams committed program events. The optional "type" query
// parameter restricts the stream to one event type.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Clients only listen; CloseRead cancels ctx when they hang up.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter string) error {
	updates, cancel := s.stream.Subscribe(ctx)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if filter != "" && evt.Type != filter {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
