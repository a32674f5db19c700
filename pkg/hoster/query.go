// Package hoster defines the contract between user-authored dataset queries
// and the layers that host them (HTTP API, MCP bridge, embedded Go use).
//
// A dataset query declares its identity, the parameters it accepts, the
// fields it returns, and a Fetch method that resolves a set of parameters
// into an offset/limit window of records. The Registry validates this
// contract once, at registration time, so a malformed query is rejected
// eagerly instead of failing mid-request.
//
// Basic usage:
//
//	reg := hoster.NewRegistry(nil)
//	if err := reg.Register(ctx, myQuery); err != nil {
//	    log.Fatal(err)
//	}
//	q, _ := reg.Lookup("my-query")
//	records, err := q.Fetch(hoster.Params{"name": "alice"}, 0, 25)
package hoster

import "context"

// DefaultPageSize is the limit substituted when a caller asks for fewer than
// one record per page.
const DefaultPageSize = 100

// Params carries one parameter set for a Fetch call, keyed by declared input
// field name. Values arrive as raw strings; parsing them is the query's job.
type Params map[string]string

// Record is one result row, keyed by declared output field name.
type Record map[string]any

// Query is the contract every hosted dataset query must implement.
//
// Fetch must be read-only and safe for concurrent use: the hosting layer
// serves many requests at once and performs no locking on the query's
// behalf. All data must already be resident in memory when Fetch runs; a
// query that needs to load anything does so in Setup.
type Query interface {
	// Names returns the URL-safe slug the query is routed by and its
	// human-readable label.
	Names() (slug, human string)

	// Inputs returns the ordered parameter names Fetch accepts. Every
	// input is required unless the query documents otherwise.
	Inputs() []string

	// Outputs returns the ordered field names each Record carries.
	Outputs() []string

	// Fetch resolves one parameter set into the window of matching
	// records starting at offset. A limit below one selects
	// DefaultPageSize. An offset at or past the end of the matches
	// yields an empty slice, never an error.
	Fetch(params Params, offset, limit int) ([]Record, error)
}

// Setuper is implemented by queries that must build or load state before
// their first Fetch. The Registry runs Setup during registration and again
// on Reload; implementations must build replacement state aside and swap it
// in atomically so concurrent Fetch calls never observe a partial index.
type Setuper interface {
	Setup(ctx context.Context) error
}

// Introducer is implemented by queries that provide a descriptive blurb for
// the query listing.
type Introducer interface {
	Introduction() string
}

// StatsProvider is implemented by queries that expose index diagnostics for
// the admin API.
type StatsProvider interface {
	IndexStats() map[string]any
}

// Paginate slices a fully materialized result list by the offset/limit
// window: limit below one selects DefaultPageSize, a negative offset is
// treated as zero, and an offset at or past the end returns an empty,
// non-nil slice. Composability holds by construction:
// Paginate(s, 0, n) + Paginate(s, n, m) == Paginate(s, 0, n+m).
func Paginate[S ~[]E, E any](items S, offset, limit int) S {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return S{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end:end]
}
