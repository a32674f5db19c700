// Package artistlookup implements the bundled fuzzy artist-name query: a
// bounded edit-distance lookup backed by a BK-tree over the artist corpus.
//
// Setup loads the corpus, normalizes every name, and builds the tree aside
// before swapping it into an atomic handle, so reloads never disturb
// in-flight fetches. Fetch is pure in-memory work and safe for unbounded
// concurrent use.
package artistlookup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/metridex/metridex/pkg/bktree"
	"github.com/metridex/metridex/pkg/corpus"
	"github.com/metridex/metridex/pkg/hoster"
)

// entry is the tree item: the artist row plus its normalized name, computed
// once at build time so the metric never re-normalizes during descent.
type entry struct {
	key    string
	artist corpus.Artist
}

func entryDistance(a, b entry) int {
	return bktree.Levenshtein(a.key, b.key)
}

// Query is the fuzzy artist lookup.
type Query struct {
	source corpus.Source
	logger *slog.Logger
	tree   atomic.Pointer[bktree.Tree[entry]]
}

// New creates the query bound to a corpus source. A nil logger selects
// slog.Default. The query serves nothing until Setup has completed.
func New(source corpus.Source, logger *slog.Logger) *Query {
	if logger == nil {
		logger = slog.Default()
	}
	return &Query{source: source, logger: logger}
}

func (q *Query) Names() (string, string) {
	return "artist-lookup", "Artist name fuzzy lookup"
}

func (q *Query) Introduction() string {
	return "Finds artists whose name is within the requested edit distance of the " +
		"probe name. Distance counts single-character insertions, deletions and " +
		"substitutions on the lowercased, trimmed name."
}

func (q *Query) Inputs() []string {
	return []string{"name", "distance"}
}

func (q *Query) Outputs() []string {
	return []string{"artist_id", "name", "distance"}
}

// Setup loads the corpus and builds a fresh tree, publishing it only once it
// is complete. Re-running Setup is how reload works: readers keep the old
// tree until the swap.
func (q *Query) Setup(ctx context.Context) error {
	artists, err := q.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("artistlookup: load corpus: %w", err)
	}

	builder, err := bktree.NewBuilder(entryDistance)
	if err != nil {
		return fmt.Errorf("artistlookup: %w", err)
	}
	for _, a := range artists {
		builder.Insert(entry{key: normalize(a.Name), artist: a})
	}
	tree := builder.Build()
	q.tree.Store(tree)

	stats := tree.Stats()
	q.logger.Info("artist lookup index built",
		"items", stats.Items,
		"max_depth", stats.MaxDepth,
		"mean_depth", stats.MeanDepth,
	)
	return nil
}

// Fetch resolves one parameter set. Both declared inputs are required: name
// is the probe, distance the inclusive maximum edit distance. Results come
// back sorted by distance (ties in corpus order) and windowed by
// offset/limit with the standard pagination rules.
func (q *Query) Fetch(params hoster.Params, offset, limit int) ([]hoster.Record, error) {
	tree := q.tree.Load()
	if tree == nil {
		return nil, fmt.Errorf("artistlookup: fetch before setup: %w", hoster.ErrPrecondition)
	}

	name := normalize(params["name"])
	if name == "" {
		return nil, fmt.Errorf("artistlookup: missing or empty required input %q: %w", "name", hoster.ErrInvalidArgument)
	}
	raw, ok := params["distance"]
	if !ok {
		return nil, fmt.Errorf("artistlookup: missing required input %q: %w", "distance", hoster.ErrInvalidArgument)
	}
	maxDistance, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("artistlookup: distance %q is not an integer: %w", raw, hoster.ErrInvalidArgument)
	}
	if maxDistance < 0 {
		return nil, fmt.Errorf("artistlookup: distance must not be negative, got %d: %w", maxDistance, hoster.ErrInvalidArgument)
	}

	matches, err := tree.RangeQuery(entry{key: name}, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("artistlookup: range query: %w", err)
	}
	matches = hoster.Paginate(matches, offset, limit)

	records := make([]hoster.Record, len(matches))
	for i, m := range matches {
		records[i] = hoster.Record{
			"artist_id": m.Item.artist.ID,
			"name":      m.Item.artist.Name,
			"distance":  m.Distance,
		}
	}
	return records, nil
}

// IndexStats reports the shape of the active tree for the admin API.
func (q *Query) IndexStats() map[string]any {
	tree := q.tree.Load()
	if tree == nil {
		return nil
	}
	s := tree.Stats()
	return map[string]any{
		"index":        "bktree",
		"items":        s.Items,
		"max_depth":    s.MaxDepth,
		"mean_depth":   s.MeanDepth,
		"stddev_depth": s.StdDevDepth,
		"mean_fanout":  s.MeanFanout,
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
