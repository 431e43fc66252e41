// Package search adapts the snapshot-backed retrieval engine into a
// validated, deadline-bounded service for the HTTP layer.
package search

import "context"

// Default parameter values, matching the retrieval pipeline's own
// defaults.
const (
	DefaultCommunityLevel = 2
	DefaultResponseType   = "Multiple Paragraphs"
)

// Params carries one search invocation. A negative CommunityLevel stands
// for "use the default"; zero legitimately selects root-level communities
// only.
type Params struct {
	Query          string
	CommunityLevel int
	ResponseType   string
}

func (p Params) withDefaults() Params {
	if p.CommunityLevel < 0 {
		p.CommunityLevel = DefaultCommunityLevel
	}
	if p.ResponseType == "" {
		p.ResponseType = DefaultResponseType
	}
	return p
}

// Result is a completed search: the model's answer plus a small
// diagnostic payload describing the retrieval context that produced it.
type Result struct {
	Response string         `json:"response"`
	Context  map[string]any `json:"context,omitempty"`
}

// Engine is the boundary to the graph-retrieval implementation.
type Engine interface {
	GlobalSearch(ctx context.Context, params Params) (*Result, error)
	LocalSearch(ctx context.Context, params Params) (*Result, error)
}
