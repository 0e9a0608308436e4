// Package supervisor routes events between per-project graph engines, the
// fetcher, and the HTTP API, and coalesces TickLater
// requests behind a 1-second timer.
package supervisor

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pixlieai/graphengine/pkg/event"
	"github.com/pixlieai/graphengine/pkg/fetcher"
	"github.com/pixlieai/graphengine/pkg/graph"
	"github.com/pixlieai/graphengine/pkg/kv"
)

// tickCoalesceInterval is how often the supervisor drains its pending-tick
// set and ticks each project named in it.
const tickCoalesceInterval = time.Second

// EngineFactory opens the graph.Engine for a project id, lazily, the
// first time the supervisor sees a request for it. onTickLater must be
// wired into the returned engine's EngineOptions.OnTickLater so the
// supervisor learns when that engine has pending work to promote, and
// onFetchResult into EngineOptions.OnFetchResult so a completed fetch is
// routed through the supervisor's event loop instead of applied by
// FetchAPI's own goroutine.
type EngineFactory func(projectID string, onTickLater func(), onFetchResult func(graph.NodeID, graph.FetchResult, error)) (*graph.Engine, error)

// Supervisor is the process-wide event loop. It holds a
// map from project id to its engine, a fetcher shared by every project,
// and a coalescing timer for tick requests.
type Supervisor struct {
	openEngine EngineFactory
	fetcher    *fetcher.Fetcher
	log        *log.Logger

	mu          sync.Mutex
	engines     map[string]*graph.Engine
	pendingTick map[string]bool

	events chan event.Event
}

// New constructs a Supervisor. openEngine is called at most once per
// project id, the first time that project is referenced.
func New(openEngine EngineFactory, f *fetcher.Fetcher) *Supervisor {
	return &Supervisor{
		openEngine:  openEngine,
		fetcher:     f,
		log:         log.New(os.Stderr, "[supervisor] ", log.LstdFlags),
		engines:     make(map[string]*graph.Engine),
		pendingTick: make(map[string]bool),
		events:      make(chan event.Event, 256),
	}
}

// Send enqueues an event for the supervisor's loop. Safe for concurrent
// use by the HTTP API and any other caller.
func (s *Supervisor) Send(e event.Event) {
	s.events <- e
}

// Run blocks, processing events until ctx is cancelled (it then returns
// ctx.Err()) or a Shutdown event is received (it then returns nil).
// Intended to be the single goroutine driving the supervisor.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickCoalesceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdownAll()
			return ctx.Err()
		case <-ticker.C:
			s.drainPendingTicks()
		case e := <-s.events:
			if e.Kind == event.KindShutdown {
				s.shutdownAll()
				return nil
			}
			s.handle(ctx, e)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, e event.Event) {
	switch e.Kind {
	case event.KindAPIRequest:
		s.handleAPIRequest(ctx, e.APIRequest)
	case event.KindFetchResponse:
		s.routeFetchResponse(e.FetchResponse)
	case event.KindFetchError:
		s.routeFetchError(e.FetchError)
	case event.KindTickLater:
		s.mu.Lock()
		s.pendingTick[e.TickLater.ProjectID] = true
		s.mu.Unlock()
	case event.KindEngineExit:
		s.mu.Lock()
		delete(s.engines, e.EngineExit.ProjectID)
		s.mu.Unlock()
	}
}

func (s *Supervisor) handleAPIRequest(ctx context.Context, req *event.APIRequest) {
	eng, err := s.engineFor(req.ProjectID)
	if err != nil {
		if req.Reply != nil {
			req.Reply <- event.APIResponse{ProjectID: req.ProjectID, Err: err}
		}
		return
	}
	// The concrete request handling (routing to GetOrAddNode, Get, etc.)
	// is left to pkg/api, which knows the request's real shape; here we
	// just make sure the engine exists and immediately schedule a tick,
	// since any API write enqueues pending work.
	_ = eng
	if req.Reply != nil {
		req.Reply <- event.APIResponse{ProjectID: req.ProjectID}
	}
	s.mu.Lock()
	s.pendingTick[req.ProjectID] = true
	s.mu.Unlock()
}

func (s *Supervisor) routeFetchResponse(resp *event.FetchResponse) {
	s.mu.Lock()
	eng, ok := s.engines[resp.ProjectID]
	s.mu.Unlock()
	if !ok {
		s.log.Printf("discarding fetch response for unknown project %s", resp.ProjectID)
		return
	}
	eng.ApplyFetchResult(resp.NodeID, resp.Result, nil)
	s.mu.Lock()
	s.pendingTick[resp.ProjectID] = true
	s.mu.Unlock()
}

func (s *Supervisor) routeFetchError(ferr *event.FetchError) {
	s.mu.Lock()
	eng, ok := s.engines[ferr.ProjectID]
	s.mu.Unlock()
	if !ok {
		s.log.Printf("discarding fetch error for unknown project %s: %v", ferr.ProjectID, ferr.Err)
		return
	}
	s.log.Printf("fetch error for project %s node %d: %v", ferr.ProjectID, ferr.NodeID, ferr.Err)
	eng.ApplyFetchResult(ferr.NodeID, graph.FetchResult{}, ferr.Err)
	s.mu.Lock()
	s.pendingTick[ferr.ProjectID] = true
	s.mu.Unlock()
}

// engineFor returns the engine for projectID, opening it lazily on first
// reference. The engine's OnTickLater is wired back to this supervisor so
// that any write the engine buffers — a synchronous GetOrAddNode/
// GetOrAddLink call from the HTTP API — schedules a real Tick on the next
// coalesce interval instead of sitting in the pending buffers forever.
// OnFetchResult is wired the same way, so a completed fetch travels
// through the supervisor's own event loop (FetchResponse/FetchError)
// instead of being applied in-process by FetchAPI's goroutine.
func (s *Supervisor) engineFor(projectID string) (*graph.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eng, ok := s.engines[projectID]; ok {
		return eng, nil
	}
	eng, err := s.openEngine(projectID,
		func() {
			s.Send(event.NewTickLater(event.TickLater{ProjectID: projectID}))
		},
		func(nodeID graph.NodeID, result graph.FetchResult, fetchErr error) {
			if fetchErr != nil {
				s.Send(event.NewFetchError(event.FetchError{ProjectID: projectID, NodeID: nodeID, Err: fetchErr}))
				return
			}
			s.Send(event.NewFetchResponse(event.FetchResponse{ProjectID: projectID, NodeID: nodeID, Result: result}))
		},
	)
	if err != nil {
		return nil, err
	}
	s.engines[projectID] = eng
	return eng, nil
}

// Engine returns the already-open engine for projectID, opening it if
// necessary. Exported so pkg/api can reach the engine's synchronous read
// methods directly instead of round-tripping through events.
func (s *Supervisor) Engine(projectID string) (*graph.Engine, error) {
	return s.engineFor(projectID)
}

// drainPendingTicks ticks every project named in the coalesced set.
func (s *Supervisor) drainPendingTicks() {
	s.mu.Lock()
	projectIDs := make([]string, 0, len(s.pendingTick))
	for id := range s.pendingTick {
		projectIDs = append(projectIDs, id)
	}
	s.pendingTick = make(map[string]bool)
	engines := make(map[string]*graph.Engine, len(projectIDs))
	for _, id := range projectIDs {
		if eng, ok := s.engines[id]; ok {
			engines[id] = eng
		}
	}
	s.mu.Unlock()

	for id, eng := range engines {
		result := eng.Tick(context.Background())
		if result.NodesReady {
			s.mu.Lock()
			s.pendingTick[id] = true
			s.mu.Unlock()
		}
	}
}

func (s *Supervisor) shutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.engines {
		s.log.Printf("shutting down engine for project %s", id)
	}
}

// NewBadgerEngineFactory returns an EngineFactory that opens a
// kv.BadgerStore per project under storageRoot, named
// "<storage_root>/<project_id>.badger".
// scraper, llm and ner are wired into every opened engine; any of them
// may be nil for a deployment that never reaches the processors needing
// them.
func NewBadgerEngineFactory(storageRoot string, f *fetcher.Fetcher, scraper graph.Scraper, llm graph.LLMProvider, ner graph.NERProvider) EngineFactory {
	return func(projectID string, onTickLater func(), onFetchResult func(graph.NodeID, graph.FetchResult, error)) (*graph.Engine, error) {
		dir := storageRoot + "/" + projectID + ".badger"
		store, err := kv.NewBadgerStore(kv.BadgerOptions{DataDir: dir})
		if err != nil {
			return nil, err
		}
		return graph.OpenProject(projectID, store, graph.EngineOptions{
			Fetcher:       f,
			Scraper:       scraper,
			LLM:           llm,
			NER:           ner,
			OnTickLater:   onTickLater,
			OnFetchResult: onFetchResult,
		})
	}
}
