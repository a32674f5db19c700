package mcp

import (
	"github.com/metridex/metridex/pkg/hoster"
)

// --- Tool Arguments ---

type ListQueriesArgs struct{}

type ListQueriesResult struct {
	Queries []hoster.Description `json:"queries"`
}

type RunQueryArgs struct {
	Slug   string            `json:"slug" jsonschema:"Slug of the query to run (see list_queries),required"`
	Params map[string]string `json:"params" jsonschema:"Input parameters for the query, one string value per declared input,required"`
	Offset int               `json:"offset,omitempty" jsonschema:"Number of leading records to skip (default 0)"`
	Count  int               `json:"count,omitempty" jsonschema:"Maximum number of records to return (default 100)"`
}

type RunQueryResult struct {
	Records []hoster.Record `json:"records"`
}

type QuerySchemaArgs struct {
	Slug string `json:"slug" jsonschema:"Slug of the query whose input schema to fetch,required"`
}

type QuerySchemaResult struct {
	Schema any `json:"schema"`
}
