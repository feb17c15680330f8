package worker

import (
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithErrorHandler is called with every failed action, after it is logged.
func WithErrorHandler(fn func(model.Action, error)) Option {
	return func(w *Worker) {
		w.onError = fn
	}
}
