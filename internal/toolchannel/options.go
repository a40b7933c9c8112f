package toolchannel

import (
	"log/slog"
	"time"
)

type settings struct {
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
	size     int
	recycle  string
}

// Option configures a SpawnChannel or a Pool.
type Option func(*settings)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithObserver receives call outcomes and worker restarts.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSize sets the number of pooled workers. Ignored by SpawnChannel.
func WithSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithRecycle sets a cron spec (e.g. "@every 30m") on which pooled workers
// are replaced. Ignored by SpawnChannel.
func WithRecycle(spec string) Option {
	return func(s *settings) { s.recycle = spec }
}

func newSettings(opts []Option) settings {
	s := settings{timeout: DefaultTimeout, observer: nopObserver{}, size: 1}
	for _, o := range opts {
		o(&s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}
