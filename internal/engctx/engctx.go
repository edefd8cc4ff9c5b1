// Package engctx is the explicit context object threaded through
// calls instead of a global singleton (§9: "'Global instance' in the
// source is a handle threaded through DML calls; implementations
// should pass a context object explicitly").
package engctx

import (
	"github.com/rs/zerolog"

	"github.com/gridrow/dbengine/internal/metrics"
)

// Context bundles the logger and metrics registry every subsystem
// above the pure data structures (restore, journal flushing, the
// eventual network layer) needs, without reaching for package-level
// state.
type Context struct {
	Log     zerolog.Logger
	Metrics *metrics.Registry
}

func New(log zerolog.Logger, reg *metrics.Registry) *Context {
	return &Context{Log: log, Metrics: reg}
}
