package corpus

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSQLiteSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.db")
	src, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	if err := src.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// Insert out of ID order; Load must return them in ID order.
	want := []Artist{
		{1, "Radiohead"},
		{2, "Portishead"},
		{3, "Massive Attack"},
	}
	if err := src.InsertArtists(ctx, []Artist{want[2], want[0], want[1]}); err != nil {
		t.Fatalf("InsertArtists: %v", err)
	}

	got, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got artists %v, want %v", got, want)
	}

	// Upserting the same IDs must replace, not duplicate.
	if err := src.InsertArtists(ctx, []Artist{{2, "Portishead (remastered)"}}); err != nil {
		t.Fatalf("InsertArtists upsert: %v", err)
	}
	got, err = src.Load(ctx)
	if err != nil {
		t.Fatalf("Load after upsert: %v", err)
	}
	if len(got) != 3 || got[1].Name != "Portishead (remastered)" {
		t.Errorf("upsert produced %v", got)
	}
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatal("OpenSQLite(\"\") succeeded, want error")
	}
}

func TestStaticSourceReturnsCopy(t *testing.T) {
	src := StaticSource{{1, "Radiohead"}}
	got, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got[0].Name = "mutated"
	if src[0].Name != "Radiohead" {
		t.Error("Load returned a slice aliasing the source")
	}
}
