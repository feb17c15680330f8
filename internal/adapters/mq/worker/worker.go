// Package worker runs the single dispatch loop that applies queued user actions.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/pkg/logger"
	"github.com/okian/credash/pkg/metrics"
)

// ErrStop may be returned by a Handler to end the loop after the current action.
var ErrStop = errors.New("worker stop requested")

// Handler applies one action.
type Handler interface {
	HandleAction(ctx context.Context, a model.Action) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, a model.Action) error

// HandleAction calls f.
func (f HandlerFunc) HandleAction(ctx context.Context, a model.Action) error { return f(ctx, a) }

// Queue defines how the worker receives actions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Action
}

// Worker applies actions one at a time, in queue order.
type Worker struct {
	queue   Queue
	handler Handler
	name    string
	onError func(model.Action, error)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a worker reading from queue.
func New(queue Queue, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		handler:  handler,
		name:     "dispatch",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}

	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)

	return w
}

// Run processes actions until ctx ends, the queue closes, Shutdown is called
// or the handler returns ErrStop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	actions := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case a, ok := <-actions:
			if !ok {
				return
			}
			if err := w.process(ctx, a); errors.Is(err, ErrStop) {
				w.logger.Info(ctx, "stop requested", logger.String("action", a.String()))
				return
			}
		}
	}
}

// Done is closed once Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Shutdown stops the loop and waits for the current action to finish.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) process(ctx context.Context, a model.Action) error {
	kind := string(a.Kind)
	start := time.Now()
	defer func() {
		metrics.RecordActionLatency(kind, float64(time.Since(start).Milliseconds()))
	}()

	err := w.handler.HandleAction(ctx, a)
	metrics.RecordActionProcessed(kind)
	if err == nil || errors.Is(err, ErrStop) {
		return err
	}

	metrics.RecordActionError(kind)
	w.logger.Warn(ctx, "action failed",
		logger.String("action", a.String()),
		logger.Error(err))
	if w.onError != nil {
		w.onError(a, err)
	}
	return err
}
