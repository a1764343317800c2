package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/speech"
)

type speechRequest struct {
	Text          string `json:"text,omitempty"`
	FormattedText string `json:"formatted_text,omitempty"`
}

type speechResponse struct {
	Instance  string       `json:"instance"`
	RequestID string       `json:"request_id,omitempty"`
	State     speech.State `json:"state"`
}

// handleSpeechTrigger starts synthesis for an answer instance. Text is taken
// from the body, or from the rendered instance when the body is empty.
// POST /api/speech/{instance}
func (s *Server) handleSpeechTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("instance")

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text := req.Text
	if text == "" {
		parsed := &answer.ParsedAnswer{FormattedText: req.FormattedText}
		if req.FormattedText == "" {
			inst, ok := s.instances.Get(id)
			if !ok {
				s.writeError(w, http.StatusNotFound, "unknown answer instance")
				return
			}
			if inst.answer.Generating() {
				s.writeError(w, http.StatusConflict, speech.ErrGenerating.Error())
				return
			}
			parsed = inst.parsed
		}
		var err error
		if text, err = s.deps.Payload.Text(parsed); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	sreq, err := s.deps.Speech.Trigger(r.Context(), id, text)
	switch {
	case errors.Is(err, speech.ErrBusy), errors.Is(err, speech.ErrGenerating):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, speech.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, speech.ErrEmptyText):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, speechResponse{
		Instance:  id,
		RequestID: sreq.ID,
		State:     s.deps.Speech.State(id),
	})
}

// GET /api/speech/{instance}
func (s *Server) handleSpeechState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("instance")
	s.writeJSON(w, http.StatusOK, speechResponse{Instance: id, State: s.deps.Speech.State(id)})
}
