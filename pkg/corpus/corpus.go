// Package corpus provides the data sources hosted queries bulk-load from.
//
// A Source is read in full once per setup or reload; queries keep no
// connection to it afterwards, so a corpus can disappear at runtime without
// affecting serving. The package ships a SQLite-backed source for real
// deployments and a static in-memory source for tests and demos.
package corpus

import (
	"context"
	"slices"
)

// Artist is the record both bundled queries index: a stable identifier and
// the display name the metrics run on.
type Artist struct {
	ID   uint32 `json:"artist_id"`
	Name string `json:"name"`
}

// Source yields the full corpus. Load is called once during query setup and
// once per explicit reload, never on the fetch path.
type Source interface {
	Load(ctx context.Context) ([]Artist, error)
}

// StaticSource is a fixed in-memory corpus.
type StaticSource []Artist

// Load returns a copy of the corpus so callers cannot mutate the source.
func (s StaticSource) Load(ctx context.Context) ([]Artist, error) {
	return slices.Clone([]Artist(s)), nil
}

// DemoArtists returns the built-in corpus used by the demo seeder and the
// default configuration.
func DemoArtists() []Artist {
	return []Artist{
		{1, "Radiohead"},
		{2, "Portishead"},
		{3, "Massive Attack"},
		{4, "Morcheeba"},
		{5, "Nirvana"},
		{6, "Pearl Jam"},
		{7, "Soundgarden"},
		{8, "Alice in Chains"},
		{9, "Aphex Twin"},
		{10, "Autechre"},
		{11, "Boards of Canada"},
		{12, "Burial"},
		{13, "Bjork"},
		{14, "PJ Harvey"},
		{15, "Tricky"},
		{16, "Lamb"},
		{17, "Goldfrapp"},
		{18, "Hooverphonic"},
		{19, "Air"},
		{20, "Zero 7"},
	}
}
