// Package metrics is the instrumentation hook for the worker pool: a small
// Provider interface workerpool.Pooler uses to record pool size and worker
// lifecycle events, with a no-op default so callers that don't care about
// metrics pay nothing for them.
package metrics

// Provider constructs named instruments for recording pool and queue
// metrics. Implementations must be safe for concurrent use.
//
// Keep this interface minimal and stable: add new capabilities via
// separate optional interfaces rather than expanding this one.
type Provider interface {
	Counter(name string, opts ...InstrumentOption) Counter
	UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter
	Histogram(name string, opts ...InstrumentOption) Histogram
}

// Counter records monotonic counts, e.g. jobs_completed_total.
type Counter interface {
	Add(n int64)
}

// UpDownCounter records a value that moves up and down, e.g. the current
// worker count.
type UpDownCounter interface {
	Add(n int64)
}

// Histogram records a distribution of float64 measurements, e.g. job run
// duration in seconds.
type Histogram interface {
	Record(v float64)
}

// InstrumentConfig carries optional instrument metadata. It's advisory only.
type InstrumentConfig struct {
	Description string
	Unit        string
	Attributes  map[string]string
}

// InstrumentOption mutates InstrumentConfig.
type InstrumentOption func(*InstrumentConfig)

// WithDescription sets an advisory description for the instrument.
func WithDescription(desc string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Description = desc }
}

// WithUnit sets an advisory unit for the instrument (e.g. "1", "seconds").
func WithUnit(unit string) InstrumentOption {
	return func(c *InstrumentConfig) { c.Unit = unit }
}

// WithAttributes attaches static attributes to the instrument. Keep
// cardinality bounded; implementations may ignore attributes entirely.
func WithAttributes(attrs map[string]string) InstrumentOption {
	return func(c *InstrumentConfig) {
		if len(attrs) == 0 {
			return
		}
		if c.Attributes == nil {
			c.Attributes = make(map[string]string, len(attrs))
		}
		for k, v := range attrs {
			c.Attributes[k] = v
		}
	}
}
