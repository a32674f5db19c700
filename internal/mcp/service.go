package mcp

import (
	"context"
	"fmt"

	"github.com/metridex/metridex/pkg/hoster"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type Service struct {
	registry *hoster.Registry
}

func NewService(reg *hoster.Registry) *Service {
	return &Service{
		registry: reg,
	}
}

// --- Tool Handlers ---

func (s *Service) ListQueries(ctx context.Context, req *mcp.CallToolRequest, args ListQueriesArgs) (*mcp.CallToolResult, ListQueriesResult, error) {
	return nil, ListQueriesResult{Queries: s.registry.List()}, nil
}

func (s *Service) RunQuery(ctx context.Context, req *mcp.CallToolRequest, args RunQueryArgs) (*mcp.CallToolResult, RunQueryResult, error) {
	if args.Offset < 0 {
		return nil, RunQueryResult{}, fmt.Errorf("offset must not be negative: %w", hoster.ErrInvalidArgument)
	}
	if args.Count < 0 {
		return nil, RunQueryResult{}, fmt.Errorf("count must not be negative: %w", hoster.ErrInvalidArgument)
	}

	q, err := s.registry.Lookup(args.Slug)
	if err != nil {
		return nil, RunQueryResult{}, err
	}

	records, err := q.Fetch(hoster.Params(args.Params), args.Offset, args.Count)
	if err != nil {
		return nil, RunQueryResult{}, fmt.Errorf("query '%s' failed: %w", args.Slug, err)
	}

	// Fetch never returns nil records on success, but an empty slice still
	// marshals as [] so the agent sees an explicit empty result.
	return nil, RunQueryResult{Records: records}, nil
}

func (s *Service) QuerySchema(ctx context.Context, req *mcp.CallToolRequest, args QuerySchemaArgs) (*mcp.CallToolResult, QuerySchemaResult, error) {
	schema, err := s.registry.InputSchema(args.Slug)
	if err != nil {
		return nil, QuerySchemaResult{}, err
	}
	return nil, QuerySchemaResult{Schema: schema}, nil
}
