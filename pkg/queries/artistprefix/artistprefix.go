// Package artistprefix implements the bundled ordered prefix query: exact
// prefix matches over the artist corpus, served from an in-memory B-tree.
//
// It exists alongside artistlookup to keep the hosting contract honest: the
// hosting layers treat both identically even though one is a metric index
// and the other an ordered one.
package artistprefix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/tidwall/btree"

	"github.com/metridex/metridex/pkg/corpus"
	"github.com/metridex/metridex/pkg/hoster"
)

// item orders the B-tree by normalized name, with the artist ID keeping
// equal names distinct.
type item struct {
	key    string
	artist corpus.Artist
}

func itemLess(a, b item) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.artist.ID < b.artist.ID
}

// Query is the prefix artist lookup.
type Query struct {
	source corpus.Source
	logger *slog.Logger
	index  atomic.Pointer[btree.BTreeG[item]]
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
	return "artist-prefix", "Artist name prefix lookup"
}

func (q *Query) Introduction() string {
	return "Lists artists whose lowercased, trimmed name starts with the given " +
		"prefix, in alphabetical order."
}

func (q *Query) Inputs() []string {
	return []string{"prefix"}
}

func (q *Query) Outputs() []string {
	return []string{"artist_id", "name"}
}

// Setup loads the corpus into a fresh B-tree and swaps it into the active
// handle once complete.
func (q *Query) Setup(ctx context.Context) error {
	artists, err := q.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("artistprefix: load corpus: %w", err)
	}

	index := btree.NewBTreeG[item](itemLess)
	for _, a := range artists {
		index.Set(item{key: normalize(a.Name), artist: a})
	}
	q.index.Store(index)

	q.logger.Info("artist prefix index built", "items", index.Len())
	return nil
}

// Fetch ascends the tree from the prefix and collects rows until the prefix
// no longer holds, then windows the result by offset/limit.
func (q *Query) Fetch(params hoster.Params, offset, limit int) ([]hoster.Record, error) {
	index := q.index.Load()
	if index == nil {
		return nil, fmt.Errorf("artistprefix: fetch before setup: %w", hoster.ErrPrecondition)
	}

	prefix := normalize(params["prefix"])
	if prefix == "" {
		return nil, fmt.Errorf("artistprefix: missing or empty required input %q: %w", "prefix", hoster.ErrInvalidArgument)
	}

	var hits []item
	index.Ascend(item{key: prefix}, func(it item) bool {
		if !strings.HasPrefix(it.key, prefix) {
			return false
		}
		hits = append(hits, it)
		return true
	})
	hits = hoster.Paginate(hits, offset, limit)

	records := make([]hoster.Record, len(hits))
	for i, it := range hits {
		records[i] = hoster.Record{
			"artist_id": it.artist.ID,
			"name":      it.artist.Name,
		}
	}
	return records, nil
}

// IndexStats reports the size of the active tree for the admin API.
func (q *Query) IndexStats() map[string]any {
	index := q.index.Load()
	if index == nil {
		return nil
	}
	return map[string]any{
		"index": "btree",
		"items": index.Len(),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
