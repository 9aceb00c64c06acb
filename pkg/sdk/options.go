package dataforge

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	uri      string
	database string
	readyIn  time.Duration

	user         string
	capabilities []string

	maxDocuments    int64
	maxStorage      int64
	maxExport       int
	schemaCacheTTL  time.Duration
	searchTimeFloor time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMongo configures the MongoDB deployment and database holding models and documents.
func WithMongo(uri, database string) Option {
	return optionFunc(func(c *clientConfig) {
		c.uri = uri
		c.database = database
	})
}

// WithReadinessTimeout bounds the initial connectivity check. Default: 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readyIn = d
	})
}

// WithUser sets the owner every operation runs as. Default: "sdk".
// No capabilities means every action is allowed.
func WithUser(id string, capabilities ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.user = id
		c.capabilities = capabilities
	})
}

// WithQuota limits the stored documents and bytes of the user. Zero means unlimited.
func WithQuota(maxDocuments, maxStorageBytes int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxDocuments = maxDocuments
		c.maxStorage = maxStorageBytes
	})
}

// WithExportLimit caps the documents one export returns. Default: 10000.
func WithExportLimit(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxExport = n
	})
}

// WithSchemaCacheTTL sets how long model definitions are cached. Default: 100s.
func WithSchemaCacheTTL(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.schemaCacheTTL = d
	})
}

// WithSearchTimeoutFloor sets the minimum server-side time budget of a search.
func WithSearchTimeoutFloor(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.searchTimeFloor = d
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
