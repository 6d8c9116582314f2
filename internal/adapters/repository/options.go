package repository

import (
	"time"

	"github.com/okian/catbracket/pkg/logger"
)

type options struct {
	logger         logger.Logger
	collection     string
	connectTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:         logger.Get().Named("repository"),
		collection:     "ratings",
		connectTimeout: 10 * time.Second,
	}
}

// Option applies a configuration option to a store driver.
type Option func(*options)

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCollection sets the MongoDB collection name.
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithConnectTimeout bounds the initial MongoDB connection and ping.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}
