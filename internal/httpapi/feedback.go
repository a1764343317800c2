package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/feedback"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secured by the fronting proxy
}

type feedbackState struct {
	MessageID string            `json:"message_id"`
	Feedback  feedback.Category `json:"feedback,omitempty"`
	Defined   bool              `json:"defined"`
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

// feedbackAnswer builds the answer view the feedback endpoints resolve
// against; ?persisted= carries the answer's own stored value.
func feedbackAnswer(r *http.Request) *answer.Answer {
	return &answer.Answer{
		MessageID: r.PathValue("messageId"),
		Feedback:  r.URL.Query().Get("persisted"),
	}
}

// GET /api/feedback/{messageId}
func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	a := feedbackAnswer(r)
	c, ok, err := feedback.Current(r.Context(), s.deps.Feedback, a)
	if err != nil {
		s.logger.Warn("Feedback table lookup failed", zap.String("message_id", a.MessageID), zap.Error(err))
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "no feedback for message")
		return
	}
	s.writeJSON(w, http.StatusOK, feedbackState{MessageID: a.MessageID, Feedback: c, Defined: true})
}

// PUT /api/feedback/{messageId}
func (s *Server) handlePutFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := feedback.Parse(req.Feedback)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a := feedbackAnswer(r)
	if err := feedback.Record(r.Context(), s.deps.Feedback, a, c); err != nil {
		s.logger.Error("Failed to record feedback", zap.String("message_id", a.MessageID), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "feedback store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, feedbackState{MessageID: a.MessageID, Feedback: c, Defined: true})
}

// watchFeedback streams the resolved feedback state for a until ctx is done.
func (s *Server) watchFeedback(ctx context.Context, a *answer.Answer) <-chan feedbackState {
	out := make(chan feedbackState, 4)
	go func() {
		defer close(out)
		_ = feedback.Watch(ctx, s.deps.Feedback, a, func(c feedback.Category, ok bool) {
			select {
			case out <- feedbackState{MessageID: a.MessageID, Feedback: c, Defined: ok}:
			case <-ctx.Done():
			}
		})
	}()
	return out
}

// handleFeedbackSSE streams feedback changes via Server-Sent Events.
// GET /api/feedback/{messageId}/stream
func (s *Server) handleFeedbackSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	a := feedbackAnswer(r)
	updates := s.watchFeedback(ctx, a)

	fmt.Fprintf(w, ": watching feedback for %s\n\n", a.MessageID)
	flusher.Flush()

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", zap.String("message_id", a.MessageID))
			return
		case st, open := <-updates:
			if !open {
				return
			}
			data, _ := json.Marshal(st)
			fmt.Fprintf(w, "event: feedback\ndata: %s\n\n", data)
			flusher.Flush()
		case <-hb.C:
			// keeps idle connections open through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// handleFeedbackWS streams feedback changes over a WebSocket.
// GET /api/feedback/{messageId}/ws
func (s *Server) handleFeedbackWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	a := feedbackAnswer(r)
	updates := s.watchFeedback(ctx, a)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Reader pump: discards client messages, ends the stream on close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case st, open := <-updates:
			if !open {
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
