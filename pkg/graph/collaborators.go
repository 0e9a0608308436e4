package graph

import "context"

// FetchRequest is what a processor asks the fetcher collaborator to
// perform on its behalf. NodeID identifies the node whose
// processing triggered the request, so the response can be routed back.
type FetchRequest struct {
	NodeID  NodeID
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// FetchResult is a successful fetch response.
type FetchResult struct {
	URL      string
	Contents string
}

// Fetcher is the engine's view of the fetcher subsystem (pkg/fetcher). It
// is the only network-facing dependency the graph package needs to know
// about; concrete rate-gating and HTTP dispatch lives outside this
// package.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Scraper turns a WebPage payload's HTML into child nodes (Title,
// Heading, Paragraph, ListItem, UnorderedPoints, OrderedPoints, Link),
// created through the Engine API.
type Scraper interface {
	Scrape(ctx context.Context, eng *Engine, pageID NodeID, baseURL, html string) error
}

// LLMProvider builds a provider-specific request for a prompt and parses
// its JSON response back into a caller-supplied schema.
type LLMProvider interface {
	BuildRequest(prompt string, callingNodeID NodeID) (FetchRequest, error)
	ParseResponse(data []byte, out any) error
}

// NERProvider extracts named entities of the given types from text.
type NERProvider interface {
	Extract(ctx context.Context, text string, types []string) ([]NamedEntity, error)
}
