package speech

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/require"
)

// toneWAV returns a short mono 16-bit WAV payload.
func toneWAV(t *testing.T) []byte {
	t.Helper()
	data := make([]int, 800)
	for i := range data {
		if i%20 < 10 {
			data[i] = 8000
		} else {
			data[i] = -8000
		}
	}
	buf := &Buffer{
		PCM: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
			Data:           data,
			SourceBitDepth: 16,
		},
		BitDepth: 16,
	}
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, WriteWAV(path, buf))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) record(tr Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, tr)
	r.mu.Unlock()
}

func (r *recorder) steps() [][2]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][2]State, len(r.transitions))
	for i, tr := range r.transitions {
		out[i] = [2]State{tr.From, tr.To}
	}
	return out
}

// fakeSynth returns payload after waiting for release (if set).
type fakeSynth struct {
	payload []byte
	err     error
	release chan struct{}
	calls   chan string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.calls != nil {
		f.calls <- text
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.payload, f.err
}

func waitDone(t *testing.T, req *Request) {
	t.Helper()
	select {
	case <-req.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("speech request did not finish")
	}
}
