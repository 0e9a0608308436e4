// Package event defines the typed messages routed between the
// supervisor, per-project engines, the fetcher, and the HTTP API.
package event

import "github.com/pixlieai/graphengine/pkg/graph"

// Kind tags which variant an Event carries.
type Kind int

const (
	KindAPIRequest Kind = iota
	KindFetchResponse
	KindFetchError
	KindTickLater
	KindEngineExit
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindAPIRequest:
		return "APIRequest"
	case KindFetchResponse:
		return "FetchResponse"
	case KindFetchError:
		return "FetchError"
	case KindTickLater:
		return "TickLater"
	case KindEngineExit:
		return "EngineExit"
	case KindShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// APIRequest carries an inbound HTTP API call that must be handled by the
// engine owning ProjectID.
type APIRequest struct {
	ProjectID string
	Request   any
	Reply     chan APIResponse
}

// APIResponse carries the result of an APIRequest back to its caller over
// APIRequest.Reply. It travels on its own reply channel rather than
// through Event/Kind, since it is addressed to one waiting caller instead
// of broadcast on the supervisor's event loop.
type APIResponse struct {
	ProjectID string
	Result    any
	Err       error
}

// FetchResponse carries a successful fetch result back to the owning
// project's engine.
type FetchResponse struct {
	ProjectID string
	NodeID    graph.NodeID
	Result    graph.FetchResult
}

// FetchError carries a failed fetch back to the owning project's engine.
type FetchError struct {
	ProjectID string
	NodeID    graph.NodeID
	Err       error
}

// TickLater asks the supervisor to coalesce a tick request for ProjectID,
// draining on the next coalesce interval instead of immediately.
type TickLater struct {
	ProjectID string
}

// EngineExit tells the supervisor a project's engine has finished and
// can be removed from the routing table.
type EngineExit struct {
	ProjectID string
}

// Shutdown stops the supervisor's Run loop: Run logs each open engine and
// returns. It is not forwarded to the engines or the fetcher.
type Shutdown struct{}

// Event is the sum-type envelope routed on the supervisor's event channel.
// Exactly one of the typed fields is set, matching Kind.
type Event struct {
	Kind Kind

	APIRequest    *APIRequest
	FetchResponse *FetchResponse
	FetchError    *FetchError
	TickLater     *TickLater
	EngineExit    *EngineExit
	Shutdown      *Shutdown
}

func NewAPIRequest(v APIRequest) Event       { return Event{Kind: KindAPIRequest, APIRequest: &v} }
func NewFetchResponse(v FetchResponse) Event { return Event{Kind: KindFetchResponse, FetchResponse: &v} }
func NewFetchError(v FetchError) Event       { return Event{Kind: KindFetchError, FetchError: &v} }
func NewTickLater(v TickLater) Event         { return Event{Kind: KindTickLater, TickLater: &v} }
func NewEngineExit(v EngineExit) Event       { return Event{Kind: KindEngineExit, EngineExit: &v} }
func NewShutdown() Event                     { return Event{Kind: KindShutdown, Shutdown: &Shutdown{}} }
