package eip20

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxConcurrentSyncs = 4
	defaultErrorBuffer        = 16
)

type settings struct {
	logger             *zap.Logger
	maxConcurrentSyncs int64
	callTimeout        time.Duration
	errorBuffer        int
}

// Option configures kit components.
type Option func(*settings)

// WithLogger sets a custom logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMaxConcurrentSyncs bounds the number of in-flight balance refreshes.
func WithMaxConcurrentSyncs(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxConcurrentSyncs = int64(n)
		}
	}
}

// WithCallTimeout bounds every background ledger call. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(s *settings) { s.callTimeout = d }
}

// WithErrorBuffer sets the capacity of the syncer diagnostics channel.
func WithErrorBuffer(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.errorBuffer = n
		}
	}
}

func applyOptions(opts []Option) settings {
	s := settings{
		logger:             zap.NewNop(),
		maxConcurrentSyncs: defaultMaxConcurrentSyncs,
		errorBuffer:        defaultErrorBuffer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}
