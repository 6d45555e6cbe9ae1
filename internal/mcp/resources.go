package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SummaryURI is the URI of the owner statistics resource.
const SummaryURI = "memory://summary"

// registerResources registers the statistics resource. Memories
// themselves are reached through tools, not resources, so clients never
// enumerate a growing corpus during initialization.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "summary",
			URI:         SummaryURI,
			Description: "Statistics for the configured owner's memory corpus",
			MIMEType:    "application/json",
		},
		s.handleSummaryResource,
	)
}

// handleSummaryResource serves the owner's statistics as JSON.
func (s *Server) handleSummaryResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	st, err := s.engine.Stats(ctx, s.ownerID)
	if err != nil {
		return nil, MapError(err)
	}

	content, err := json.MarshalIndent(toStatisticsOutput(st), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      SummaryURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
