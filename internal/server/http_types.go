package server

import (
	"github.com/metridex/metridex/pkg/hoster"
)

// queryEntry is one element of the root listing response. It combines the
// query description with the relative links a client needs to call it.
type queryEntry struct {
	hoster.Description
	Links queryLinks `json:"links"`
}

// queryLinks holds the relative endpoint paths for a hosted query.
type queryLinks struct {
	JSON   string `json:"json"`
	Schema string `json:"schema"`
}

// taskAcceptedResponse defines the body returned when a reload is enqueued.
type taskAcceptedResponse struct {
	TaskID string `json:"task_id"`
}
