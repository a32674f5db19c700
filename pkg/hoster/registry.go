package hoster

// This file implements the Registry, the explicit handle the hosting layers
// route through. Registration validates the Query contract eagerly and runs
// Setup, so every query reachable via Lookup is fully built and serving.
// There is no package-level registry: callers create one and pass it around.

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/sync/errgroup"
)

// slugPattern constrains slugs to URL-safe tokens: they appear verbatim in
// route paths and metric labels.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Description is the static metadata of a registered query, served by the
// listing endpoint and the MCP bridge.
type Description struct {
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Introduction string   `json:"introduction,omitempty"`
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
}

// Registry holds the active queries. The map is guarded by an RWMutex and is
// read-mostly; the queries themselves manage their own index handles and are
// concurrency-safe per the Query contract.
type Registry struct {
	mu      sync.RWMutex
	queries map[string]Query
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger selects slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		queries: make(map[string]Query),
		logger:  logger,
	}
}

// Register validates q's contract and exposes it for lookups. It rejects an
// empty or URL-unsafe slug, an empty human name, empty or duplicated input
// or output field names, and a slug that is already taken. If q implements
// Setuper, Setup runs to completion here; a Setup error rejects the
// registration and the query stays unreachable.
func (r *Registry) Register(ctx context.Context, q Query) error {
	slug, human := q.Names()
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("register: slug %q is not a URL-safe token: %w", slug, ErrInvalidArgument)
	}
	if human == "" {
		return fmt.Errorf("register %q: empty human-readable name: %w", slug, ErrInvalidArgument)
	}
	if err := validateFields("input", q.Inputs()); err != nil {
		return fmt.Errorf("register %q: %w", slug, err)
	}
	if err := validateFields("output", q.Outputs()); err != nil {
		return fmt.Errorf("register %q: %w", slug, err)
	}

	r.mu.RLock()
	_, taken := r.queries[slug]
	r.mu.RUnlock()
	if taken {
		return fmt.Errorf("register: slug %q already registered: %w", slug, ErrInvalidArgument)
	}

	if s, ok := q.(Setuper); ok {
		start := time.Now()
		if err := s.Setup(ctx); err != nil {
			return fmt.Errorf("setup of query %q failed: %w", slug, err)
		}
		r.logger.Info("query setup complete", "slug", slug, "duration", time.Since(start))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: a concurrent Register for the same slug may have won while
	// setup ran unlocked.
	if _, taken := r.queries[slug]; taken {
		return fmt.Errorf("register: slug %q already registered: %w", slug, ErrInvalidArgument)
	}
	r.queries[slug] = q
	r.logger.Info("query registered", "slug", slug, "name", human)
	return nil
}

// RegisterAll registers every query concurrently, since setups are typically
// I/O-bound corpus loads. The first error cancels the shared context and is
// returned; queries that already registered stay registered.
func (r *Registry) RegisterAll(ctx context.Context, queries ...Query) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			return r.Register(ctx, q)
		})
	}
	return g.Wait()
}

// Lookup returns the query registered under slug.
func (r *Registry) Lookup(slug string) (Query, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[slug]
	if !ok {
		return nil, fmt.Errorf("query %q: %w", slug, ErrNotFound)
	}
	return q, nil
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.queries))
	for slug := range r.queries {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Describe returns the static metadata of the query registered under slug.
func (r *Registry) Describe(slug string) (Description, error) {
	q, err := r.Lookup(slug)
	if err != nil {
		return Description{}, err
	}
	return describe(q), nil
}

// List returns the metadata of every registered query, sorted by slug.
func (r *Registry) List() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Description, 0, len(r.queries))
	for _, q := range r.queries {
		list = append(list, describe(q))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })
	return list
}

// InputSchema builds a JSON Schema for one parameter set of the query: an
// object with one string property per declared input, all required. Served
// by the HTTP schema endpoint so API consumers can validate calls up front.
func (r *Registry) InputSchema(slug string) (*jsonschema.Schema, error) {
	d, err := r.Describe(slug)
	if err != nil {
		return nil, err
	}
	props := make(map[string]*jsonschema.Schema, len(d.Inputs))
	for _, name := range d.Inputs {
		props[name] = &jsonschema.Schema{Type: "string"}
	}
	return &jsonschema.Schema{
		Type:        "object",
		Description: fmt.Sprintf("One parameter set for %q", d.Name),
		Properties:  props,
		Required:    slices.Clone(d.Inputs),
	}, nil
}

// Reload re-runs Setup on the query registered under slug. The Setuper
// contract requires building the replacement index aside and swapping it in
// atomically, so lookups and fetches keep working on the old index until the
// new one is complete. Queries without Setup have nothing to rebuild.
func (r *Registry) Reload(ctx context.Context, slug string) error {
	q, err := r.Lookup(slug)
	if err != nil {
		return err
	}
	s, ok := q.(Setuper)
	if !ok {
		return fmt.Errorf("query %q has no setup to re-run: %w", slug, ErrInvalidArgument)
	}
	start := time.Now()
	if err := s.Setup(ctx); err != nil {
		return fmt.Errorf("reload of query %q failed: %w", slug, err)
	}
	r.logger.Info("query reloaded", "slug", slug, "duration", time.Since(start))
	return nil
}

// describe assembles a Description, copying the field slices so callers
// cannot mutate query internals through the DTO.
func describe(q Query) Description {
	slug, human := q.Names()
	d := Description{
		Slug:    slug,
		Name:    human,
		Inputs:  slices.Clone(q.Inputs()),
		Outputs: slices.Clone(q.Outputs()),
	}
	if i, ok := q.(Introducer); ok {
		d.Introduction = i.Introduction()
	}
	return d
}

func validateFields(kind string, fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("no %s fields declared: %w", kind, ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f == "" {
			return fmt.Errorf("empty %s field name: %w", kind, ErrInvalidArgument)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("duplicate %s field %q: %w", kind, f, ErrInvalidArgument)
		}
		seen[f] = struct{}{}
	}
	return nil
}
