package speech

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

// Output is the playback resource of a pipeline. Play starts playback and
// returns without waiting for it to finish.
type Output interface {
	Suspended() bool
	Resume(ctx context.Context) error
	Play(ctx context.Context, buf *Buffer) error
}

// DiscardOutput accepts and drops every buffer.
type DiscardOutput struct {
	played atomic.Int64
}

func (o *DiscardOutput) Suspended() bool              { return false }
func (o *DiscardOutput) Resume(context.Context) error { return nil }

func (o *DiscardOutput) Play(context.Context, *Buffer) error {
	o.played.Add(1)
	return nil
}

// Played returns how many buffers were accepted
func (o *DiscardOutput) Played() int64 { return o.played.Load() }

// FileOutput writes each played buffer to dir as a WAV file. It starts
// suspended; Play waits until Resume has been called, and fails at once if
// Resume could not prepare dir.
type FileOutput struct {
	dir    string
	prefix string
	logger *zap.Logger

	once    sync.Once
	resumed chan struct{}
	seq     atomic.Int64

	failOnce  sync.Once
	failed    chan struct{}
	resumeErr error

	mu      sync.Mutex
	written []string
}

// NewFileOutput creates a suspended file output.
func NewFileOutput(dir, prefix string, logger *zap.Logger) *FileOutput {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "speech"
	}
	return &FileOutput{
		dir:     dir,
		prefix:  prefix,
		logger:  logger,
		resumed: make(chan struct{}),
		failed:  make(chan struct{}),
	}
}

func (o *FileOutput) Suspended() bool {
	select {
	case <-o.resumed:
		return false
	default:
		return true
	}
}

func (o *FileOutput) Resume(ctx context.Context) error {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		err = fmt.Errorf("resume output: %w", err)
		o.failOnce.Do(func() {
			o.resumeErr = err
			close(o.failed)
		})
		return err
	}
	o.once.Do(func() { close(o.resumed) })
	return nil
}

func (o *FileOutput) Play(ctx context.Context, buf *Buffer) error {
	select {
	case <-o.resumed:
	case <-o.failed:
		if o.Suspended() {
			return o.resumeErr
		}
	case <-ctx.Done():
		return fmt.Errorf("output still suspended: %w", ctx.Err())
	}

	name := filepath.Join(o.dir, fmt.Sprintf("%s-%d-%03d.wav", o.prefix, time.Now().Unix(), o.seq.Add(1)))
	if err := WriteWAV(name, buf); err != nil {
		return err
	}
	o.mu.Lock()
	o.written = append(o.written, name)
	o.mu.Unlock()
	o.logger.Info("Wrote speech audio",
		zap.String("path", name),
		zap.Duration("duration", buf.Duration),
	)
	return nil
}

// Written returns the paths of the files written so far, oldest first.
func (o *FileOutput) Written() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.written...)
}

// WriteWAV encodes buf as PCM WAV at path, 16-bit unless buf says otherwise.
func WriteWAV(path string, buf *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	depth := buf.BitDepth
	if depth == 0 {
		depth = 16
	}
	enc := wav.NewEncoder(f, buf.SampleRate(), depth, buf.Channels(), 1)
	if err := enc.Write(buf.PCM); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return f.Close()
}
