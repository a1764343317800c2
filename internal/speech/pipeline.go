package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

// DefaultRequestTimeout bounds one synthesis round trip.
const DefaultRequestTimeout = 30 * time.Second

var (
	ErrBusy        = errors.New("speech request already in progress")
	ErrRateLimited = errors.New("speech synthesis rate limited")
	ErrGenerating  = errors.New("answer is still generating")
	ErrEmptyText   = errors.New("nothing to synthesize")
)

// Options tune a Pipeline.
type Options struct {
	RequestTimeout time.Duration
	// Limiter is shared across pipelines to cap outbound synthesis calls.
	Limiter *rate.Limiter
	// OnTransition observes every state change. It runs with the pipeline
	// lock held and must not call back into the pipeline.
	OnTransition func(Transition)
}

// Request is one accepted synthesis trigger.
type Request struct {
	ID        string
	Text      string
	StartedAt time.Time

	done chan struct{}
	err  error
}

// Done is closed once the pipeline is back to Idle for this request.
func (r *Request) Done() <-chan struct{} { return r.done }

// Err returns the failure cause after Done is closed; nil on success.
func (r *Request) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Pipeline is the speech state machine of one rendered answer instance.
// At most one request is in flight; triggers while busy are rejected.
type Pipeline struct {
	instance string
	synth    Synthesizer
	decoder  Decoder
	output   Output
	opts     Options
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	current *Request

	// onIdle runs after each request settles, before its Done channel closes.
	onIdle func(*Pipeline)
}

// NewPipeline creates an idle pipeline
func NewPipeline(instance string, synth Synthesizer, decoder Decoder, output Output, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if decoder == nil {
		decoder = WAVDecoder{}
	}
	if output == nil {
		output = &DiscardOutput{}
	}
	return &Pipeline{
		instance: instance,
		synth:    synth,
		decoder:  decoder,
		output:   output,
		opts:     opts,
		logger:   logger.With(zap.String("instance", instance)),
		state:    Idle,
	}
}

// State returns the current state
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the in-flight request, or nil when idle.
func (p *Pipeline) Current() *Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Trigger starts synthesis of text and returns immediately. The request runs
// detached from ctx's cancellation under the pipeline's own timeout; ctx
// still carries values such as the trace span.
func (p *Pipeline) Trigger(ctx context.Context, text string) (*Request, error) {
	if strings.TrimSpace(text) == answer.GeneratingPlaceholder {
		metrics.SpeechRejected.WithLabelValues("generating").Inc()
		return nil, ErrGenerating
	}
	if strings.TrimSpace(text) == "" {
		metrics.SpeechRejected.WithLabelValues("empty").Inc()
		return nil, ErrEmptyText
	}

	p.mu.Lock()
	if p.state != Idle {
		p.mu.Unlock()
		metrics.SpeechRejected.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	if p.opts.Limiter != nil && !p.opts.Limiter.Allow() {
		p.mu.Unlock()
		metrics.SpeechRejected.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}
	req := &Request{
		ID:        uuid.NewString(),
		Text:      text,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
	p.current = req
	p.setLocked(req, Requesting)
	p.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	if p.output.Suspended() {
		go func() {
			resumeCtx, cancel := context.WithTimeout(detached, p.opts.RequestTimeout)
			defer cancel()
			if err := p.output.Resume(resumeCtx); err != nil {
				p.logger.Warn("Failed to resume audio output", zap.Error(err))
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(detached, p.opts.RequestTimeout)

	go func() {
		defer cancel()
		p.run(runCtx, req)
	}()
	return req, nil
}

func (p *Pipeline) run(ctx context.Context, req *Request) {
	payload, err := p.synth.Synthesize(ctx, req.Text)
	if err != nil {
		p.fail(req, "request", err)
		return
	}
	p.set(req, Decoding)

	buf, err := p.decoder.Decode(ctx, payload)
	if err != nil {
		p.fail(req, "decode", err)
		return
	}
	p.set(req, Playing)

	if err := p.output.Play(ctx, buf); err != nil {
		p.fail(req, "play", err)
		return
	}

	p.logger.Info("Speech playback started",
		zap.String("request_id", req.ID),
		zap.Duration("audio", buf.Duration),
		zap.Duration("elapsed", time.Since(req.StartedAt)),
	)
	metrics.SpeechRequests.WithLabelValues("success").Inc()
	p.finish(req, nil)
}

func (p *Pipeline) fail(req *Request, stage string, err error) {
	p.logger.Warn("Speech synthesis failed",
		zap.String("request_id", req.ID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	metrics.SpeechRequests.WithLabelValues(stage + "_error").Inc()
	p.set(req, Failed)
	p.finish(req, fmt.Errorf("%s: %w", stage, err))
}

// finish returns the pipeline to Idle and releases the request.
func (p *Pipeline) finish(req *Request, err error) {
	p.mu.Lock()
	p.setLocked(req, Idle)
	p.current = nil
	p.mu.Unlock()

	metrics.SpeechDuration.Observe(time.Since(req.StartedAt).Seconds())
	if p.onIdle != nil {
		p.onIdle(p)
	}
	req.err = err
	close(req.done)
}

func (p *Pipeline) set(req *Request, to State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setLocked(req, to)
}

func (p *Pipeline) setLocked(req *Request, to State) {
	from := p.state
	if !CanTransition(from, to) {
		p.logger.Error("Illegal speech transition",
			zap.String("from", from.String()), zap.String("to", to.String()))
		return
	}
	p.state = to
	metrics.SpeechTransitions.WithLabelValues(from.String(), to.String()).Inc()
	if p.opts.OnTransition != nil {
		p.opts.OnTransition(Transition{Instance: p.instance, RequestID: req.ID, From: from, To: to})
	}
}
