package health

import (
	"context"
	"time"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/circuitbreaker"
)

// RedisChecker checks the Redis behind the feedback table.
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
	timeout time.Duration
}

// NewRedisChecker creates a Redis health checker
func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper) *RedisChecker {
	return &RedisChecker{wrapper: wrapper, timeout: 3 * time.Second}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) IsCritical() bool       { return true }
func (r *RedisChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Timestamp: start}

	if r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		return result
	}

	err := r.wrapper.Ping(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		return result
	}

	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
	return result
}

// Breaker is implemented by clients guarded by a circuit breaker.
type Breaker interface {
	BreakerOpen() bool
}

// BreakerChecker reports a dependency as degraded while its breaker is open.
// It is never critical: answers still render without speech.
type BreakerChecker struct {
	name    string
	breaker Breaker
}

// NewBreakerChecker creates a checker named name
func NewBreakerChecker(name string, breaker Breaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

func (b *BreakerChecker) Name() string           { return b.name }
func (b *BreakerChecker) IsCritical() bool       { return false }
func (b *BreakerChecker) Timeout() time.Duration { return time.Second }

func (b *BreakerChecker) Check(ctx context.Context) CheckResult {
	if b.breaker.BreakerOpen() {
		return CheckResult{
			Status:    StatusDegraded,
			Message:   "circuit breaker open",
			Timestamp: time.Now(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "circuit breaker closed", Timestamp: time.Now()}
}
