package feedback

import (
	"context"
	"errors"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/metrics"
)

var ErrNoMessageID = errors.New("answer has no message id")

// Current resolves the category to display for a. A table entry overrides the
// answer's own persisted value. When the table cannot be read the derived
// value is still returned alongside the error.
func Current(ctx context.Context, table Table, a *answer.Answer) (Category, bool, error) {
	if a == nil || a.MessageID == "" {
		metrics.FeedbackResolutions.WithLabelValues("undefined").Inc()
		return "", false, nil
	}

	var tableErr error
	if table != nil {
		c, ok, err := table.Get(ctx, a.MessageID)
		if err == nil && ok {
			metrics.FeedbackResolutions.WithLabelValues("table").Inc()
			return c, true, nil
		}
		tableErr = err
	}

	c, ok := Derive(a)
	if ok {
		metrics.FeedbackResolutions.WithLabelValues("derived").Inc()
	} else {
		metrics.FeedbackResolutions.WithLabelValues("undefined").Inc()
	}
	return c, ok, tableErr
}

// Observer receives the category each time it is re-resolved.
type Observer func(c Category, ok bool)

// Watch calls observe with the current category, then again after every
// table change for a's message id, until ctx is done. Each notification
// triggers a fresh Current rather than trusting the change payload, so the
// observer never keeps a value older than the latest notification.
func Watch(ctx context.Context, table Table, a *answer.Answer, observe Observer) error {
	if a == nil || a.MessageID == "" {
		observe("", false)
		return nil
	}

	ch := table.Subscribe(a.MessageID, 8)
	defer table.Unsubscribe(a.MessageID, ch)

	c, ok, _ := Current(ctx, table, a)
	observe(c, ok)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, open := <-ch:
			if !open {
				return nil
			}
			c, ok, _ := Current(ctx, table, a)
			observe(c, ok)
		}
	}
}

// Record stores c for a's message. Answers without a message id cannot carry
// feedback.
func Record(ctx context.Context, table Table, a *answer.Answer, c Category) error {
	if a == nil || a.MessageID == "" {
		return ErrNoMessageID
	}
	if !c.Valid() {
		return ErrUnknownCategory
	}
	return table.Set(ctx, a.MessageID, c)
}
