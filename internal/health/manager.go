package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers and aggregates their results.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// NewManager creates a health manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{checkers: make(map[string]Checker), logger: logger}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	if checker == nil {
		return fmt.Errorf("checker cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[checker.Name()]; exists {
		return fmt.Errorf("checker %s already registered", checker.Name())
	}
	m.checkers[checker.Name()] = checker
	m.logger.Info("Health checker registered",
		zap.String("name", checker.Name()),
		zap.Bool("critical", checker.IsCritical()),
	)
	return nil
}

// Check runs every checker concurrently, each under its own timeout.
func (m *Manager) Check(ctx context.Context) OverallHealth {
	start := time.Now()

	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			res := m.runSingleCheck(ctx, c)
			rmu.Lock()
			results[c.Name()] = res
			rmu.Unlock()
		}(c)
	}
	wg.Wait()

	overall := summarize(results)
	overall.Timestamp = start
	overall.Duration = time.Since(start)
	overall.Checks = results
	return overall
}

func (m *Manager) runSingleCheck(ctx context.Context, c Checker) (res CheckResult) {
	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Health checker panicked", zap.String("name", c.Name()), zap.Any("panic", r))
			res = CheckResult{
				Status:    StatusUnhealthy,
				Error:     fmt.Sprint(r),
				Component: c.Name(),
				Critical:  c.IsCritical(),
				Timestamp: time.Now(),
			}
		}
	}()

	res = c.Check(ctx)
	res.Component = c.Name()
	res.Critical = c.IsCritical()
	return res
}

func summarize(results map[string]CheckResult) OverallHealth {
	if len(results) == 0 {
		return OverallHealth{Status: StatusHealthy, Message: "No health checks registered", Ready: true, Live: true}
	}

	var criticalFailures, nonCriticalFailures, degraded int
	for _, r := range results {
		switch r.Status {
		case StatusDegraded:
			degraded++
		case StatusUnhealthy, StatusUnknown:
			if r.Critical {
				criticalFailures++
			} else {
				nonCriticalFailures++
			}
		}
	}

	switch {
	case criticalFailures > 0:
		return OverallHealth{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures),
			Live:    true,
		}
	case degraded > 0 || nonCriticalFailures > 0:
		return OverallHealth{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d component(s) degraded", degraded+nonCriticalFailures),
			Degraded: true,
			Ready:    true,
			Live:     true,
		}
	}
	return OverallHealth{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("All %d components healthy", len(results)),
		Ready:   true,
		Live:    true,
	}
}
