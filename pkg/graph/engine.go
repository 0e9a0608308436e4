// Package graph implements the per-project knowledge-graph engine: its
// typed node/edge data model, content-addressed deduplication, chunked
// on-disk persistence, and the tick loop that drives node processing.
package graph

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pixlieai/graphengine/pkg/kv"
)

// NodeState tags the result of GetOrAddNode.
type NodeState int

const (
	NodeStateExisting NodeState = iota
	NodeStatePending
	NodeStateNew
)

func (s NodeState) String() string {
	switch s {
	case NodeStateExisting:
		return "Existing"
	case NodeStatePending:
		return "Pending"
	case NodeStateNew:
		return "New"
	default:
		return "Unknown"
	}
}

// ExistingOrNew is the outcome of GetOrAddNode: an already-persisted
// match, a still-pending match from this tick's add buffer, or a freshly
// allocated id awaiting the next tick's drain.
type ExistingOrNew struct {
	ID    NodeID
	State NodeState
}

type pendingNode struct {
	id      NodeID
	payload Payload
	labels  []Label
}

type pendingEdge struct {
	from, to     NodeID
	labelForward EdgeLabel
	labelBack    EdgeLabel
}

type pendingUpdate struct {
	id      NodeID
	payload Payload
}

// Processor handles one payload variant's share of a tick's node
// processing pass. Processors read and mutate the graph
// only through Engine's public API; they never touch engine internals
// directly.
type Processor func(ctx context.Context, eng *Engine, id NodeID) error

// EngineOptions configures a new Engine. Zero values take the package's
// documented defaults.
type EngineOptions struct {
	// ChunkSize is the number of consecutive node ids stored per on-disk
	// chunk. Default 100.
	ChunkSize int
	// MinTickInterval rate-limits Tick; a call within this interval of
	// the previous tick defers instead of running. Default 10ms.
	MinTickInterval time.Duration
	// Fetcher dispatches outbound HTTP on behalf of FetchAPI and the
	// processors that need it. Required for any engine that owns Link or
	// WebSearch nodes; may be nil for pure in-memory tests that never
	// reach those processors.
	Fetcher Fetcher
	// Scraper turns fetched WebPage HTML into child nodes. Required by
	// the WebPage processor; nil is fine if no WebPage nodes are ever
	// added.
	Scraper Scraper
	// LLM is the provider consulted by the Objective, ClassifierSettings
	// and Conclusion processors.
	LLM LLMProvider
	// NER is the named-entity collaborator consulted by the
	// NamedEntitiesToExtract processor.
	NER NERProvider
	// Processors overrides the default processor table, keyed by the
	// label it handles. Left nil, defaultProcessors() is used; the
	// supervisor's Badger engine factory leaves it nil.
	Processors map[Label]Processor
	// Logger receives tick and processor diagnostics. Defaults to
	// log.New(os.Stderr, ...) tagged with the project id.
	Logger *log.Logger
	// OnTickLater is invoked whenever a tick produced work and the
	// engine wants to be ticked again. The supervisor wires this to its
	// own TickLater coalescing; left nil, a caller must
	// poll NeedsToTick itself.
	OnTickLater func()
	// OnFetchResult, if set, is called from FetchAPI's own goroutine
	// with a completed fetch instead of applying it to the engine
	// in-process. The supervisor wires this to route the completion
	// through pkg/event (FetchResponse/FetchError) and apply it via
	// ApplyFetchResult from its own event loop. Left nil, FetchAPI
	// applies the result directly — the mode standalone engines (and
	// most tests) use.
	OnFetchResult func(NodeID, FetchResult, error)
}

// Engine owns one project's graph: its node and edge tables, dedup
// indexes, pending mutation buffers, and the processor dispatch table.
// All public methods are safe for concurrent use, but the ordering
// guarantees documented on Tick assume a single goroutine drives Tick for
// a given Engine —
// concurrent Tick calls on the same Engine are not supported.
type Engine struct {
	mu sync.Mutex

	projectID string
	store     kv.Store
	chunkSize int

	nodes *nodeStore
	edges *edgeStore

	nodeIDsByLabel map[Label][]NodeID
	domainIndex    map[string]NodeID
	linkIndex      map[string]NodeID
	textIndex      map[Label]map[string]NodeID

	pendingAdds    []pendingNode
	pendingEdges   []pendingEdge
	pendingUpdates []pendingUpdate
	fetchResults   []fetchOutcome

	lastNodeID      NodeID
	lastTickedAt    time.Time
	minTickInterval time.Duration

	fetcher       Fetcher
	scraper       Scraper
	llm           LLMProvider
	ner           NERProvider
	processors    map[Label]Processor
	onTickLater   func()
	onFetchResult func(NodeID, FetchResult, error)
	log           *log.Logger
}

// OpenProject constructs an Engine backed by store and loads any
// previously persisted nodes and edges, resuming id allocation from the
// highest node id found.
func OpenProject(projectID string, store kv.Store, opts EngineOptions) (*Engine, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	minTick := opts.MinTickInterval
	if minTick <= 0 {
		minTick = 10 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, fmt.Sprintf("[graph:%s] ", projectID), log.LstdFlags)
	}
	processors := opts.Processors
	if processors == nil {
		processors = defaultProcessors()
	}

	e := &Engine{
		projectID:       projectID,
		store:           store,
		chunkSize:       chunkSize,
		nodes:           newNodeStore(chunkSize),
		edges:           newEdgeStore(chunkSize),
		nodeIDsByLabel:  make(map[Label][]NodeID),
		domainIndex:     make(map[string]NodeID),
		linkIndex:       make(map[string]NodeID),
		textIndex:       make(map[Label]map[string]NodeID),
		lastTickedAt:    time.Time{},
		minTickInterval: minTick,
		fetcher:         opts.Fetcher,
		scraper:         opts.Scraper,
		llm:             opts.LLM,
		ner:             opts.NER,
		processors:      processors,
		onTickLater:     opts.OnTickLater,
		onFetchResult:   opts.OnFetchResult,
		log:             logger,
	}

	maxID, err := e.nodes.loadAll(store, logger)
	if err != nil {
		return nil, err
	}
	if err := e.edges.loadAll(store, logger); err != nil {
		return nil, err
	}
	e.lastNodeID = maxID
	e.rebuildIndexes()
	e.log.Printf("opened project with %d nodes loaded from disk", len(e.nodes.data))
	return e, nil
}

// rebuildIndexes repopulates the label and dedup indexes from whatever
// loadAll placed in e.nodes.data. Called once at open time. By this point
// edges are fully loaded too, so a persisted Link's domainID — lost on
// reload since LinkPayload.domainID is unexported and never touches JSON —
// can be recovered from its BelongsTo edge before it re-enters the dedup
// index.
func (e *Engine) rebuildIndexes() {
	ids := make([]NodeID, 0, len(e.nodes.data))
	for id := range e.nodes.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := e.nodes.data[id]
		e.indexLabels(id, n.Labels)
		payload := n.Payload
		if lp, ok := payload.(LinkPayload); ok {
			if owners := e.edges.neighbors(id, EdgeBelongsTo); len(owners) > 0 {
				lp.domainID = owners[0]
				payload = lp
			}
		}
		e.indexNew(id, payload, n.Labels)
	}
}

func (e *Engine) indexLabels(id NodeID, labels []Label) {
	for _, l := range labels {
		e.nodeIDsByLabel[l] = append(e.nodeIDsByLabel[l], id)
	}
}

// GetOrAddNode resolves payload against the dedup indexes and, failing
// that, the pending-add buffer. If nothing matches and shouldAddNew is
// true, it allocates a new id and enqueues the node for the next tick's
// drain.
func (e *Engine) GetOrAddNode(payload Payload, labels []Label, shouldAddNew bool) (ExistingOrNew, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	allLabels := append([]Label{payload.Label()}, labels...)

	if text, ok := payload.(TextPayload); ok {
		if id, ok := e.dedupText(text.Content, allLabels); ok {
			return ExistingOrNew{ID: id, State: NodeStateExisting}, nil
		}
	} else if id, ok := e.findExisting(payload); ok {
		return ExistingOrNew{ID: id, State: NodeStateExisting}, nil
	}

	if id, ok := e.findPending(payload, allLabels); ok {
		return ExistingOrNew{ID: id, State: NodeStatePending}, nil
	}

	if !shouldAddNew {
		return ExistingOrNew{}, ErrNodeNotFound
	}

	e.lastNodeID++
	id := e.lastNodeID
	e.pendingAdds = append(e.pendingAdds, pendingNode{id: id, payload: payload, labels: allLabels})
	e.requestTickLocked()
	return ExistingOrNew{ID: id, State: NodeStateNew}, nil
}

// findPending scans the pending-add buffer for an equivalent payload, so
// two GetOrAddNode calls in the same tick before a drain still dedup.
// Only the dedup-eligible variants (Domain, Link, canonical Text) are
// compared; payload equality is checked field-by-field rather than via
// == since several variants carry slices and are not comparable.
func (e *Engine) findPending(payload Payload, labels []Label) (NodeID, bool) {
	switch v := payload.(type) {
	case DomainPayload:
		for _, p := range e.pendingAdds {
			if pd, ok := p.payload.(DomainPayload); ok && pd.Name == v.Name {
				return p.id, true
			}
		}
	case LinkPayload:
		for _, p := range e.pendingAdds {
			if pl, ok := p.payload.(LinkPayload); ok && pl.domainID == v.domainID && pl.FullPath() == v.FullPath() {
				return p.id, true
			}
		}
	case TextPayload:
		for _, p := range e.pendingAdds {
			pt, ok := p.payload.(TextPayload)
			if !ok || pt.Content != v.Content {
				continue
			}
			for _, l := range labels {
				if !canonicalTextLabels[l] {
					continue
				}
				for _, pl := range p.labels {
					if pl == l {
						return p.id, true
					}
				}
			}
		}
	}
	return 0, false
}

// AddConnection enqueues a directed edge pair to be wired on the next
// tick's drain-edges step. Duplicate (from, to, label) pairs already
// pending are collapsed.
func (e *Engine) AddConnection(from, to NodeID, labelForward, labelBack EdgeLabel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.pendingEdges {
		if p.from == from && p.to == to && p.labelForward == labelForward {
			return
		}
	}
	e.pendingEdges = append(e.pendingEdges, pendingEdge{from: from, to: to, labelForward: labelForward, labelBack: labelBack})
	e.requestTickLocked()
}

// UpdateNode enqueues a payload swap for id, applied on the next tick's
// drain-updates step. Labels are never touched by an update.
func (e *Engine) UpdateNode(id NodeID, payload Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendingUpdates = append(e.pendingUpdates, pendingUpdate{id: id, payload: payload})
	e.requestTickLocked()
}

// ToggleFlag flips flag on node id in place. Unlike payload updates, flag
// changes apply immediately rather than going through the pending-update
// buffer — there is nothing to dedup or order against.
func (e *Engine) ToggleFlag(id NodeID, flag Flags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes.get(id)
	if !ok {
		return fmt.Errorf("%w: node %d", ErrNodeNotFound, id)
	}
	n.Flags ^= flag
	n.WrittenAt = time.Now()
	e.nodes.put(n)
	return nil
}

// GetNodeByID returns a copy of node id's current state.
func (e *Engine) GetNodeByID(id NodeID) (*NodeItem, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNodeNotFound, id)
	}
	return n.Clone(), nil
}

// Labels returns every label with at least one node carrying it, for the
// admin HTTP surface's label browser.
func (e *Engine) Labels() []Label {
	e.mu.Lock()
	defer e.mu.Unlock()
	labels := make([]Label, 0, len(e.nodeIDsByLabel))
	for l, ids := range e.nodeIDsByLabel {
		if len(ids) > 0 {
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// GetNodeIDsWithLabel returns every node id carrying label, in ascending
// id order.
func (e *Engine) GetNodeIDsWithLabel(label Label) []NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := append([]NodeID(nil), e.nodeIDsByLabel[label]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetNodeIDsConnectedWithLabel returns the neighbors of id reachable via
// an edge carrying label.
func (e *Engine) GetNodeIDsConnectedWithLabel(id NodeID, label EdgeLabel) ([]NodeID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes.get(id); !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNodeNotFound, id)
	}
	return e.edges.neighbors(id, label), nil
}

// FetchAPI checks that a fetcher collaborator is configured, marks the
// origin node IS_REQUESTING, and dispatches the blocking HTTP call on its
// own goroutine — the one piece of this engine that must not run on the
// caller's goroutine. The fetcher applies its own rate gate inside that
// goroutine; a rejection arrives as a fetch error. The completion is
// handed off to ApplyFetchResult:
// directly, if no OnFetchResult is wired, or via the supervisor's event
// loop (FetchResponse/FetchError) if it is. Processors call this instead
// of talking to pkg/fetcher directly.
func (e *Engine) FetchAPI(ctx context.Context, req FetchRequest) error {
	if e.fetcher == nil {
		return newFetchError("no fetcher configured for project %s", e.projectID)
	}
	e.mu.Lock()
	n, ok := e.nodes.get(req.NodeID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: node %d", ErrNodeNotFound, req.NodeID)
	}
	n.Flags = n.Flags.Set(FlagIsRequesting)
	n.WrittenAt = time.Now()
	e.nodes.put(n)
	e.mu.Unlock()
	go func() {
		result, err := e.fetcher.Fetch(ctx, req)
		if e.onFetchResult != nil {
			e.onFetchResult(req.NodeID, result, err)
			return
		}
		e.ApplyFetchResult(req.NodeID, result, err)
	}()
	return nil
}

// ApplyFetchResult folds a completed fetch into the engine's mutable
// state: clears IS_REQUESTING, marks HAD_ERROR on failure, and queues a
// successful result for the owning processor's next tick. Called by
// FetchAPI itself when no OnFetchResult is wired, and by the supervisor
// from its event loop when routing a FetchResponse/FetchError.
func (e *Engine) ApplyFetchResult(nodeID NodeID, result FetchResult, fetchErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes.get(nodeID)
	if !ok {
		return
	}
	n.Flags = n.Flags.Clear(FlagIsRequesting)
	if fetchErr != nil {
		n.Flags = n.Flags.Set(FlagHadError)
		e.log.Printf("fetch error for node %d: %v", nodeID, fetchErr)
	}
	e.nodes.put(n)
	if fetchErr == nil {
		e.fetchResults = append(e.fetchResults, fetchOutcome{nodeID: nodeID, result: result})
	}
	e.requestTickLocked()
}

type fetchOutcome struct {
	nodeID NodeID
	result FetchResult
}

// NeedsToTick reports whether the engine has pending work that a Tick
// call would act on.
func (e *Engine) NeedsToTick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pendingAdds) > 0 || len(e.pendingEdges) > 0 || len(e.pendingUpdates) > 0 || len(e.fetchResults) > 0
}

// requestTickLocked invokes the OnTickLater callback, if any. Must be
// called with e.mu held.
func (e *Engine) requestTickLocked() {
	if e.onTickLater != nil {
		e.onTickLater()
	}
}

// EngineStats summarizes an engine's current in-memory graph, for the
// admin HTTP surface.
type EngineStats struct {
	ProjectID string
	NodeCount int
	EdgeCount int
	Labels    int
}

// Stats returns a point-in-time summary of the graph's size.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	edgeCount := 0
	for _, conns := range e.edges.data {
		edgeCount += len(conns)
	}
	return EngineStats{
		ProjectID: e.projectID,
		NodeCount: len(e.nodes.data),
		EdgeCount: edgeCount,
		Labels:    len(e.nodeIDsByLabel),
	}
}
