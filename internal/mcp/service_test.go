package mcp

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/metridex/metridex/pkg/corpus"
	"github.com/metridex/metridex/pkg/hoster"
	"github.com/metridex/metridex/pkg/queries/artistlookup"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	source := corpus.StaticSource{
		{ID: 1, Name: "alice"},
		{ID: 2, Name: "alicia"},
		{ID: 3, Name: "bob"},
	}
	reg := hoster.NewRegistry(slog.Default())
	if err := reg.Register(context.Background(), artistlookup.New(source, slog.Default())); err != nil {
		t.Fatal(err)
	}
	return NewService(reg)
}

func TestListQueries(t *testing.T) {
	service := newTestService(t)

	_, result, err := service.ListQueries(context.Background(), nil, ListQueriesArgs{})
	if err != nil {
		t.Fatalf("ListQueries failed: %v", err)
	}
	if len(result.Queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(result.Queries))
	}
	if result.Queries[0].Slug != "artist-lookup" {
		t.Errorf("unexpected slug: %q", result.Queries[0].Slug)
	}
	if len(result.Queries[0].Inputs) == 0 || len(result.Queries[0].Outputs) == 0 {
		t.Errorf("expected inputs and outputs to be listed: %+v", result.Queries[0])
	}
}

func TestRunQuery(t *testing.T) {
	service := newTestService(t)

	args := RunQueryArgs{
		Slug:   "artist-lookup",
		Params: map[string]string{"name": "alice", "distance": "2"},
	}
	_, result, err := service.RunQuery(context.Background(), nil, args)
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[0]["name"] != "alice" || result.Records[1]["name"] != "alicia" {
		t.Errorf("unexpected record order: %v", result.Records)
	}
}

func TestRunQueryWindow(t *testing.T) {
	service := newTestService(t)

	args := RunQueryArgs{
		Slug:   "artist-lookup",
		Params: map[string]string{"name": "alice", "distance": "2"},
		Offset: 1,
		Count:  1,
	}
	_, result, err := service.RunQuery(context.Background(), nil, args)
	if err != nil {
		t.Fatalf("RunQuery failed: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0]["name"] != "alicia" {
		t.Errorf("expected only alicia in window, got %v", result.Records)
	}
}

func TestRunQueryErrors(t *testing.T) {
	service := newTestService(t)

	cases := []struct {
		name string
		args RunQueryArgs
		want error
	}{
		{
			name: "unknown slug",
			args: RunQueryArgs{Slug: "nope", Params: map[string]string{}},
			want: hoster.ErrNotFound,
		},
		{
			name: "missing distance",
			args: RunQueryArgs{Slug: "artist-lookup", Params: map[string]string{"name": "alice"}},
			want: hoster.ErrInvalidArgument,
		},
		{
			name: "negative offset",
			args: RunQueryArgs{Slug: "artist-lookup", Params: map[string]string{"name": "alice", "distance": "1"}, Offset: -1},
			want: hoster.ErrInvalidArgument,
		},
		{
			name: "negative count",
			args: RunQueryArgs{Slug: "artist-lookup", Params: map[string]string{"name": "alice", "distance": "1"}, Count: -1},
			want: hoster.ErrInvalidArgument,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := service.RunQuery(context.Background(), nil, tc.args)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestQuerySchemaTool(t *testing.T) {
	service := newTestService(t)

	_, result, err := service.QuerySchema(context.Background(), nil, QuerySchemaArgs{Slug: "artist-lookup"})
	if err != nil {
		t.Fatalf("QuerySchema failed: %v", err)
	}
	if result.Schema == nil {
		t.Error("expected a schema")
	}

	_, _, err = service.QuerySchema(context.Background(), nil, QuerySchemaArgs{Slug: "nope"})
	if !errors.Is(err, hoster.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
