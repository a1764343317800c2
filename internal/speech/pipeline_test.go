package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
)

var happyPath = [][2]State{
	{Idle, Requesting},
	{Requesting, Decoding},
	{Decoding, Playing},
	{Playing, Idle},
}

func TestPipelineSuccess(t *testing.T) {
	wavData := toneWAV(t)
	var got synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wavData)
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	rec := &recorder{}
	out := &DiscardOutput{}
	p := NewPipeline("inst-1", NewHTTPClient(ClientConfig{Endpoint: srv.URL}, logger), WAVDecoder{}, out,
		Options{OnTransition: rec.record}, logger)

	req, err := p.Trigger(context.Background(), "The sky is blue.")
	require.NoError(t, err)
	waitDone(t, req)

	require.NoError(t, req.Err())
	assert.Equal(t, "The sky is blue.", got.Text)
	assert.Equal(t, happyPath, rec.steps())
	assert.Equal(t, Idle, p.State())
	assert.Nil(t, p.Current())
	assert.EqualValues(t, 1, out.Played())
}

func TestPipelineRejectsSecondTriggerWhileBusy(t *testing.T) {
	wavData := toneWAV(t)
	var hits int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		arrived <- struct{}{}
		<-release
		_, _ = w.Write(wavData)
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	p := NewPipeline("inst-busy", NewHTTPClient(ClientConfig{Endpoint: srv.URL}, logger), nil, nil, Options{}, logger)

	req, err := p.Trigger(context.Background(), "first")
	require.NoError(t, err)
	<-arrived
	assert.Equal(t, Requesting, p.State())

	second, err := p.Trigger(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Nil(t, second)
	assert.Same(t, req, p.Current())

	close(release)
	waitDone(t, req)
	require.NoError(t, req.Err())
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestPipelineNonSuccessStatusFailsThenRecovers(t *testing.T) {
	wavData := toneWAV(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "voice unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(wavData)
	}))
	defer srv.Close()

	logger := zaptest.NewLogger(t)
	rec := &recorder{}
	p := NewPipeline("inst-fail", NewHTTPClient(ClientConfig{Endpoint: srv.URL}, logger), nil, nil,
		Options{OnTransition: rec.record}, logger)

	req, err := p.Trigger(context.Background(), "hello")
	require.NoError(t, err)
	waitDone(t, req)

	var statusErr *StatusError
	require.ErrorAs(t, req.Err(), &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, "voice unavailable", statusErr.Body)
	assert.Equal(t, [][2]State{{Idle, Requesting}, {Requesting, Failed}, {Failed, Idle}}, rec.steps())
	assert.Equal(t, Idle, p.State())

	again, err := p.Trigger(context.Background(), "hello")
	require.NoError(t, err, "pipeline must be re-triggerable after a failure")
	waitDone(t, again)
	require.NoError(t, again.Err())
}

func TestPipelineDecodeFailure(t *testing.T) {
	logger := zaptest.NewLogger(t)
	rec := &recorder{}
	p := NewPipeline("inst-decode", &fakeSynth{payload: []byte("definitely not audio")}, WAVDecoder{}, nil,
		Options{OnTransition: rec.record}, logger)

	req, err := p.Trigger(context.Background(), "hello")
	require.NoError(t, err)
	waitDone(t, req)

	assert.ErrorIs(t, req.Err(), ErrInvalidAudio)
	assert.Equal(t, [][2]State{
		{Idle, Requesting}, {Requesting, Decoding}, {Decoding, Failed}, {Failed, Idle},
	}, rec.steps())
}

// gatedOutput stays suspended until its Resume is released.
type gatedOutput struct {
	release chan struct{}
	resumed atomic.Bool
	played  atomic.Int32
}

func (o *gatedOutput) Suspended() bool { return !o.resumed.Load() }

func (o *gatedOutput) Resume(ctx context.Context) error {
	select {
	case <-o.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	o.resumed.Store(true)
	return nil
}

func (o *gatedOutput) Play(context.Context, *Buffer) error {
	o.played.Add(1)
	return nil
}

func TestPipelineResumesSuspendedOutputWithoutBlocking(t *testing.T) {
	synth := &fakeSynth{payload: toneWAV(t), calls: make(chan string, 1)}
	out := &gatedOutput{release: make(chan struct{})}
	p := NewPipeline("inst-suspended", synth, nil, out, Options{}, zaptest.NewLogger(t))

	req, err := p.Trigger(context.Background(), "hello")
	require.NoError(t, err)

	select {
	case text := <-synth.calls:
		assert.Equal(t, "hello", text)
	case <-time.After(2 * time.Second):
		t.Fatal("synthesis request blocked on output resume")
	}
	assert.True(t, out.Suspended())

	close(out.release)
	waitDone(t, req)
	require.NoError(t, req.Err())
	assert.Eventually(t, func() bool { return !out.Suspended() }, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, out.played.Load())
}

func TestPipelineRequestTimeout(t *testing.T) {
	synth := &fakeSynth{release: make(chan struct{})}
	p := NewPipeline("inst-timeout", synth, nil, nil, Options{RequestTimeout: 50 * time.Millisecond}, zaptest.NewLogger(t))

	req, err := p.Trigger(context.Background(), "hello")
	require.NoError(t, err)
	waitDone(t, req)

	assert.ErrorIs(t, req.Err(), context.DeadlineExceeded)
	assert.Equal(t, Idle, p.State())
}

func TestPipelineIgnoresCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	synth := &fakeSynth{payload: toneWAV(t), release: release}
	p := NewPipeline("inst-detached", synth, nil, nil, Options{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	req, err := p.Trigger(ctx, "hello")
	require.NoError(t, err)
	cancel()
	close(release)

	waitDone(t, req)
	assert.NoError(t, req.Err())
}

func TestPipelineRejectsPlaceholderAndEmptyText(t *testing.T) {
	synth := &fakeSynth{calls: make(chan string, 2)}
	p := NewPipeline("inst-gen", synth, nil, nil, Options{}, zaptest.NewLogger(t))

	_, err := p.Trigger(context.Background(), answer.GeneratingPlaceholder)
	assert.ErrorIs(t, err, ErrGenerating)
	_, err = p.Trigger(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	assert.Len(t, synth.calls, 0)
	assert.Equal(t, Idle, p.State())
}

func TestPipelineFailsFastWhenOutputCannotResume(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	out := NewFileOutput(filepath.Join(blocker, "out"), "answer", nil)

	rec := &recorder{}
	p := NewPipeline("answer-1", &fakeSynth{payload: toneWAV(t)}, WAVDecoder{}, out,
		Options{RequestTimeout: 30 * time.Second, OnTransition: rec.record}, zaptest.NewLogger(t))

	req, err := p.Trigger(context.Background(), "hello")
	require.NoError(t, err)
	select {
	case <-req.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline waited on an output that failed to resume")
	}
	require.Error(t, req.Err())
	assert.Equal(t, Idle, p.State())
	assert.Contains(t, rec.steps(), [2]State{Playing, Failed})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Idle, Requesting))
	assert.True(t, CanTransition(Failed, Idle))
	assert.False(t, CanTransition(Idle, Playing))
	assert.False(t, CanTransition(Requesting, Playing))
	assert.False(t, CanTransition(Failed, Requesting))
}

func TestStateJSONRoundTrip(t *testing.T) {
	for _, st := range []State{Idle, Requesting, Decoding, Playing, Failed} {
		data, err := json.Marshal(Transition{From: st, To: st})
		require.NoError(t, err)

		var got Transition
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, st, got.From)
		assert.Equal(t, st, got.To)
	}

	var st State
	assert.Error(t, st.UnmarshalText([]byte("unknown")))
	assert.Error(t, json.Unmarshal([]byte(`"speaking"`), &st))
}

func TestRequestErrBeforeDone(t *testing.T) {
	req := &Request{done: make(chan struct{}), err: errors.New("late")}
	assert.NoError(t, req.Err())
}
