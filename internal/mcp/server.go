package mcp

import (
	"github.com/metridex/metridex/pkg/hoster"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func NewMCPServer(reg *hoster.Registry) *mcp.Server {
	service := NewService(reg)

	// Create Server instance
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "Metridex Queries",
		Version: "1.0.0",
	}, nil) // Options can be nil for default

	// Register Tools using the Generic AddTool which inspects structs!

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_queries",
		Description: "List the hosted dataset queries with their slugs, descriptions, inputs and outputs.",
	}, service.ListQueries)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "run_query",
		Description: "Run a hosted dataset query by slug with one set of input parameters. Results are paginated with offset/count.",
	}, service.RunQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "query_schema",
		Description: "Fetch the JSON Schema describing the input parameters of a query.",
	}, service.QuerySchema)

	return s
}
