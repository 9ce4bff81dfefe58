package worker

import "github.com/okian/pulse/pkg/logger"

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName names the worker for logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
			w.logger = logger.Get().Named(name)
		}
	}
}
