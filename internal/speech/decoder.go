package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidAudio = errors.New("invalid audio payload")

// Buffer is decoded PCM audio ready for playback.
type Buffer struct {
	PCM      *audio.IntBuffer
	BitDepth int
	Duration time.Duration
}

// Channels returns the channel count
func (b *Buffer) Channels() int { return b.PCM.Format.NumChannels }

// SampleRate returns the sample rate in Hz
func (b *Buffer) SampleRate() int { return b.PCM.Format.SampleRate }

// Decoder turns a synthesis payload into a playable buffer.
type Decoder interface {
	Decode(ctx context.Context, payload []byte) (*Buffer, error)
}

// WAVDecoder decodes RIFF/WAVE PCM payloads.
type WAVDecoder struct{}

func (WAVDecoder) Decode(ctx context.Context, payload []byte) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := wav.NewDecoder(bytes.NewReader(payload))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		return nil, ErrInvalidAudio
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if len(pcm.Data) == 0 || pcm.Format == nil || pcm.Format.NumChannels == 0 || pcm.Format.SampleRate == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrInvalidAudio)
	}
	frames := len(pcm.Data) / pcm.Format.NumChannels
	dur := time.Duration(frames) * time.Second / time.Duration(pcm.Format.SampleRate)
	return &Buffer{PCM: pcm, BitDepth: int(d.BitDepth), Duration: dur}, nil
}
