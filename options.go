package hyperbatch

import (
	"log/slog"

	"github.com/pthm/hyperbatch/schema"
)

// DefaultAPIBase is the href prefix used when WithAPIBase is not given.
const DefaultAPIBase = "/api/v3"

type options struct {
	logger      *slog.Logger
	metrics     *Metrics
	cache       Cache
	settings    schema.Settings
	apiBase     string
	collection  string
	concurrency int
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		apiBase:     DefaultAPIBase,
		collection:  "work_packages",
		concurrency: 1,
	}
}

// Option configures a Projector or an Aggregator.
type Option func(*options)

// WithLogger sets the structured logger for integrity and guard warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records batch, cache and anomaly metrics. See NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCache enables caching of the cacheable part of documents.
// The cache is shared across calls and goroutines.
func WithCache(c Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithSettings sets the global settings snapshot documents are rendered with.
func WithSettings(s schema.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithAPIBase sets the href prefix for hierarchy and association links.
func WithAPIBase(base string) Option {
	return func(o *options) {
		o.apiBase = base
	}
}

// WithCollection sets the collection segment of entity hrefs.
func WithCollection(name string) Option {
	return func(o *options) {
		o.collection = name
	}
}

// WithConcurrency bounds how many store queries of one batch run at once.
// Values below 1 are treated as 1. Use 1 when the stores share a *sql.Tx.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

// entityHref renders the canonical href of an entity.
func (o options) entityHref(id ID) string {
	return o.apiBase + "/" + o.collection + "/" + id.String()
}
