package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/citations"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/config"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/feedback"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/render"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/speech"
)

type gatedSynth struct {
	payload []byte
	release chan struct{}
}

func (g *gatedSynth) Synthesize(ctx context.Context, _ string) ([]byte, error) {
	select {
	case <-g.release:
		return g.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func wavPayload(t *testing.T) []byte {
	t.Helper()
	data := make([]int, 400)
	for i := range data {
		data[i] = (i % 16) * 500
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, speech.WriteWAV(path, &speech.Buffer{
		PCM:      &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 8000}, Data: data, SourceBitDepth: 16},
		BitDepth: 16,
	}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

type fixture struct {
	mux   *http.ServeMux
	table *feedback.MemoryTable
	synth *gatedSynth
}

func newFixture(t *testing.T, speechCfg speech.ManagerConfig) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	table := feedback.NewMemoryTable()
	synth := &gatedSynth{payload: wavPayload(t), release: make(chan struct{})}
	t.Cleanup(func() {
		select {
		case <-synth.release:
		default:
			close(synth.release)
		}
	})

	srv := NewServer(Deps{
		Parser:   answer.NewParser(citations.NewResolver(logger), 0),
		Renderer: render.NewPipeline(render.Config{}, logger),
		Settings: config.NewSettings(&config.Config{Render: config.RenderConfig{SanitizeAnswer: true}}),
		Feedback: table,
		Speech:   speech.NewManager(synth, speech.WAVDecoder{}, nil, speechCfg, logger),
	}, logger)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return &fixture{mux: mux, table: table, synth: synth}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (f *fixture) render(t *testing.T, a answer.Answer) renderResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/answers/render", map[string]interface{}{"answer": a})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[renderResponse](t, rec)
}

func TestRenderAndActivateCitation(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})
	resp := f.render(t, answer.Answer{
		MessageID: "m1",
		Text:      "The sky is blue [doc1].",
		Feedback:  "positive",
		Citations: []answer.Document{{Title: "Sky", URL: "https://example.com/sky"}},
	})

	assert.NotEmpty(t, resp.Instance)
	assert.Equal(t, "The sky is blue ^1^.", resp.FormattedText)
	assert.Equal(t, "The sky is blue ¹.", resp.DisplayText)
	assert.Contains(t, resp.HTML, `class="citation-ref"`)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, feedback.Positive, resp.Feedback)
	assert.False(t, resp.Generating)

	rec := f.do(t, http.MethodGet, "/api/answers/"+resp.Instance+"/citations/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[answer.Citation](t, rec)
	assert.Equal(t, "doc1", c.Source)
	assert.Equal(t, "Sky", c.Title)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/answers/"+resp.Instance+"/citations/7", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/answers/"+resp.Instance+"/citations/x", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/answers/nope/citations/1", nil).Code)
}

func TestRenderRejectsBadBodies(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/answers/render", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/answers/render", map[string]string{}).Code)
}

func TestRenderGeneratingAnswer(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})
	resp := f.render(t, answer.Answer{Text: answer.GeneratingPlaceholder})
	assert.True(t, resp.Generating)

	rec := f.do(t, http.MethodPost, "/api/speech/"+resp.Instance, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeedbackGetPut(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/feedback/m1", nil).Code)

	rec := f.do(t, http.MethodGet, "/api/feedback/m1?persisted=dislike,too_short", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feedback.Negative, decode[feedbackState](t, rec).Feedback)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/feedback/m1", map[string]string{"feedback": "meh"}).Code)

	rec = f.do(t, http.MethodPut, "/api/feedback/m1", map[string]string{"feedback": "positive"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/feedback/m1?persisted=negative", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, feedback.Positive, decode[feedbackState](t, rec).Feedback, "table entry wins")
}

func TestFeedbackSSE(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})
	ts := httptest.NewServer(f.mux)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/feedback/m1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() feedbackState {
		for lines.Scan() {
			if data, ok := strings.CutPrefix(lines.Text(), "data: "); ok {
				var st feedbackState
				require.NoError(t, json.Unmarshal([]byte(data), &st))
				return st
			}
		}
		t.Fatal("stream ended")
		return feedbackState{}
	}

	assert.False(t, next().Defined)

	require.NoError(t, f.table.Set(context.Background(), "m1", feedback.WrongCitation))
	st := next()
	assert.True(t, st.Defined)
	assert.Equal(t, feedback.WrongCitation, st.Feedback)
}

func TestFeedbackWebSocket(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})
	ts := httptest.NewServer(f.mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/feedback/m1/ws?persisted=positive"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var st feedbackState
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, feedback.Positive, st.Feedback)

	require.NoError(t, f.table.Set(context.Background(), "m1", feedback.Violent))
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, feedback.Violent, st.Feedback)
}

func TestSpeechTriggerAndState(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})

	rec := f.do(t, http.MethodPost, "/api/speech/a1", speechRequest{Text: "hello"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[speechResponse](t, rec).RequestID)

	rec = f.do(t, http.MethodGet, "/api/speech/a1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"instance":"a1","state":"requesting"}`, rec.Body.String())
	assert.Equal(t, speech.Requesting, decode[speechResponse](t, rec).State)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/speech/a1", speechRequest{Text: "again"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/speech/unknown", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/speech/a2", speechRequest{Text: "   "}).Code)

	close(f.synth.release)
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/speech/a1", nil)
		return strings.Contains(rec.Body.String(), `"idle"`)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSpeechFromRenderedInstance(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{})
	resp := f.render(t, answer.Answer{Text: "Read **this** [doc1]", Citations: []answer.Document{{Title: "T"}}})

	rec := f.do(t, http.MethodPost, "/api/speech/"+resp.Instance, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestSpeechRateLimited(t *testing.T) {
	f := newFixture(t, speech.ManagerConfig{RatePerSecond: 0.001, Burst: 1})

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/speech/a1", speechRequest{Text: "one"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/speech/a2", speechRequest{Text: "two"}).Code)
}
