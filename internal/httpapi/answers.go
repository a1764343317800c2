package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/feedback"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/render"
)

// instance is one rendered answer kept addressable by id.
type instance struct {
	answer *answer.Answer
	parsed *answer.ParsedAnswer
	doc    *render.Document
}

type renderRequest struct {
	Answer   *answer.Answer `json:"answer"`
	Sanitize *bool          `json:"sanitize,omitempty"`
}

type renderResponse struct {
	Instance      string             `json:"instance"`
	FormattedText string             `json:"formatted_text"`
	DisplayText   string             `json:"display_text"`
	HTML          string             `json:"html"`
	Citations     []answer.Citation  `json:"citations"`
	CodeBlocks    []render.CodeBlock `json:"code_blocks,omitempty"`
	Feedback      feedback.Category  `json:"feedback,omitempty"`
	Generating    bool               `json:"generating"`
}

// handleRender parses, renders and registers an answer.
// POST /api/answers/render
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Answer == nil {
		s.writeError(w, http.StatusBadRequest, "answer required")
		return
	}

	sanitize := s.deps.Settings.SanitizeAnswer()
	if req.Sanitize != nil {
		sanitize = *req.Sanitize
	}

	parsed := s.deps.Parser.Parse(req.Answer)
	id := uuid.NewString()

	doc, err := s.deps.Renderer.Render(parsed, render.Options{Sanitize: sanitize})
	if err != nil {
		s.logger.Warn("Answer render failed", zap.String("instance", id), zap.Error(err))
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":    err.Error(),
			"instance": id,
		})
		return
	}

	s.instances.Set(id, &instance{answer: req.Answer, parsed: parsed, doc: doc}, 0)
	metrics.RenderInstances.Set(float64(s.instances.Len()))

	c, _, ferr := feedback.Current(r.Context(), s.deps.Feedback, req.Answer)
	if ferr != nil {
		s.logger.Warn("Feedback table lookup failed", zap.String("message_id", req.Answer.MessageID), zap.Error(ferr))
	}

	s.writeJSON(w, http.StatusOK, renderResponse{
		Instance:      id,
		FormattedText: parsed.FormattedText,
		DisplayText:   answer.DisplayText(parsed.FormattedText),
		HTML:          doc.HTML,
		Citations:     doc.Citations,
		CodeBlocks:    doc.CodeBlocks,
		Feedback:      c,
		Generating:    req.Answer.Generating(),
	})
}

// handleCitation activates a citation reference of a rendered answer.
// GET /api/answers/{instance}/citations/{index}
func (s *Server) handleCitation(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instances.Get(r.PathValue("instance"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown answer instance")
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "citation index must be an integer")
		return
	}
	c, err := inst.doc.ActivateCitation(index)
	if errors.Is(err, render.ErrUnknownCitation) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}
