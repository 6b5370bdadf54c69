// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint
// when net/http/pprof is imported in the main binary.
package metrics

import "expvar"

// Operation counters.
var (
	AutoConnectRuns     = expvar.NewInt("serendipity_autoconnect_runs_total")
	BulkConnectRuns     = expvar.NewInt("serendipity_bulkconnect_runs_total")
	GenerationFailures  = expvar.NewInt("serendipity_generation_failures_total")
	ParseFailures       = expvar.NewInt("serendipity_parse_failures_total")
	ConnectionsInserted = expvar.NewInt("serendipity_connections_inserted_total")
	RateLimited         = expvar.NewInt("serendipity_rate_limited_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }

// Add increments the given counter by n.
func Add(counter *expvar.Int, n int64) { counter.Add(n) }
