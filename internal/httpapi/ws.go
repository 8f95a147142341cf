package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/simonepiga/synthpanel/internal/stream"
)

// handleConversationWS attaches the panel client to the conversation's
// delivery stream. One websocket per conversation: attaching takes over the
// channel and disconnecting releases it.
func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.convos.Get(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.streams.Attach(id)
	defer s.streams.Detach(id)
	s.metrics.ActiveConversations.Set(float64(s.streams.Len()))
	defer func() {
		s.metrics.ActiveConversations.Set(float64(s.streams.Len()))
	}()
	s.log.Info("panel attached", zap.String("conversation_id", id))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch.Publish(stream.Ready(id))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch.Events():
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(e); err != nil {
					cancel()
					return
				}
				if e.Type == stream.TypeSessionClosed {
					cancel()
					return
				}
			}
		}
	}()

	// The panel never sends data frames; the read loop exists to notice
	// disconnects and to keep control frames flowing.
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	}

	cancel()
	<-writerDone
	s.log.Info("panel detached", zap.String("conversation_id", id))
}
