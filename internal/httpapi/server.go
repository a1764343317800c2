package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/cache"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/config"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/feedback"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/render"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/speech"
)

// Deps are the services behind the HTTP API.
type Deps struct {
	Parser   *answer.Parser
	Renderer *render.Pipeline
	Settings *config.Settings
	Feedback feedback.Table
	Speech   *speech.Manager
	Payload  speech.PayloadMode
	// InstanceCache bounds how many rendered answers stay addressable for
	// citation activation and speech.
	InstanceCache int
}

// Server serves the answer, feedback and speech endpoints.
type Server struct {
	deps      Deps
	instances *cache.LocalLRU[string, *instance]
	logger    *zap.Logger
}

// NewServer creates the API server
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Settings == nil {
		deps.Settings = config.NewSettings(nil)
	}
	if deps.Payload == "" {
		deps.Payload = speech.PayloadText
	}
	return &Server{
		deps:      deps,
		instances: cache.NewLocalLRU[string, *instance](deps.InstanceCache),
		logger:    logger,
	}
}

// RegisterRoutes registers all API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "POST /api/answers/render", "render", s.handleRender)
	s.handle(mux, "GET /api/answers/{instance}/citations/{index}", "citation", s.handleCitation)

	s.handle(mux, "GET /api/feedback/{messageId}", "feedback_get", s.handleGetFeedback)
	s.handle(mux, "PUT /api/feedback/{messageId}", "feedback_put", s.handlePutFeedback)
	s.handle(mux, "GET /api/feedback/{messageId}/stream", "feedback_sse", s.handleFeedbackSSE)
	s.handle(mux, "GET /api/feedback/{messageId}/ws", "feedback_ws", s.handleFeedbackWS)

	s.handle(mux, "POST /api/speech/{instance}", "speech_trigger", s.handleSpeechTrigger)
	s.handle(mux, "GET /api/speech/{instance}", "speech_state", s.handleSpeechState)
}

func (s *Server) handle(mux *http.ServeMux, pattern, route string, fn http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(sw.code)).Inc()
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

// statusWriter records the response code for metrics while still exposing
// the flushing and hijacking the streaming handlers need.
type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacking not supported")
	}
	w.code = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
