package speech

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	RequestTimeout time.Duration
	// RatePerSecond caps outbound synthesis calls across all instances;
	// zero disables the limit.
	RatePerSecond float64
	Burst         int
	OnTransition  func(Transition)
}

// OutputFactory builds the playback output for a new instance.
type OutputFactory func(instance string) Output

// Manager owns one Pipeline per rendered answer instance. Different
// instances synthesize concurrently; each instance has at most one request.
type Manager struct {
	synth     Synthesizer
	decoder   Decoder
	newOutput OutputFactory
	opts      Options
	logger    *zap.Logger

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewManager creates a manager. A nil factory gives every instance a
// DiscardOutput.
func NewManager(synth Synthesizer, decoder Decoder, newOutput OutputFactory, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if newOutput == nil {
		newOutput = func(string) Output { return &DiscardOutput{} }
	}
	opts := Options{RequestTimeout: cfg.RequestTimeout, OnTransition: cfg.OnTransition}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Manager{
		synth:     synth,
		decoder:   decoder,
		newOutput: newOutput,
		opts:      opts,
		logger:    logger,
		pipelines: make(map[string]*Pipeline),
	}
}

// Trigger starts synthesis for instance. Pipelines exist only while a
// request is in flight; an instance that settles back to Idle is dropped.
func (m *Manager) Trigger(ctx context.Context, instance, text string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pipelines[instance]
	if !ok {
		p = NewPipeline(instance, m.synth, m.decoder, m.newOutput(instance), m.opts, m.logger)
		p.onIdle = m.release
	}
	req, err := p.Trigger(ctx, text)
	if err != nil {
		return nil, err
	}
	if !ok {
		m.pipelines[instance] = p
		metrics.SpeechPipelines.Set(float64(len(m.pipelines)))
	}
	return req, nil
}

func (m *Manager) release(p *Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pipelines[p.instance] != p || p.State() != Idle {
		return
	}
	delete(m.pipelines, p.instance)
	metrics.SpeechPipelines.Set(float64(len(m.pipelines)))
}

// State returns the state of instance; unknown instances are Idle.
func (m *Manager) State(instance string) State {
	m.mu.RLock()
	p, ok := m.pipelines[instance]
	m.mu.RUnlock()
	if !ok {
		return Idle
	}
	return p.State()
}

// Remove forgets an idle instance. Busy instances are kept so their
// in-flight request still has a home; Remove reports whether it removed.
func (m *Manager) Remove(instance string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[instance]
	if !ok {
		return false
	}
	if p.State() != Idle {
		return false
	}
	delete(m.pipelines, instance)
	metrics.SpeechPipelines.Set(float64(len(m.pipelines)))
	return true
}

// Len returns the number of live pipelines
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipelines)
}
