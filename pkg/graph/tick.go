package graph

import (
	"context"
	"sort"
	"time"
)

// TickResult reports what a Tick call did, mainly for logging and tests.
type TickResult struct {
	Deferred     bool
	NodesAdded   int
	EdgesAdded   int
	NodesUpdated int
	NodesReady   bool // true if another Tick should be scheduled
}

// Tick runs one pass of the engine's scheduling loop:
// drain pending adds, drain pending edges, process unprocessed nodes,
// drain pending updates, persist dirty chunks, and report whether more
// work remains. Callers must never invoke Tick concurrently with itself
// on the same Engine.
func (e *Engine) Tick(ctx context.Context) TickResult {
	e.mu.Lock()
	if !e.lastTickedAt.IsZero() {
		if elapsed := time.Since(e.lastTickedAt); elapsed < e.minTickInterval {
			e.mu.Unlock()
			e.requestTick()
			return TickResult{Deferred: true}
		}
	}
	e.mu.Unlock()

	addedNodes := e.drainAdds()
	addedEdges := e.drainEdges()
	if addedNodes > 0 || addedEdges > 0 {
		if err := e.persistDirty(); err != nil {
			e.log.Printf("persist after drain failed: %v", err)
		}
	}

	e.processNodes(ctx)

	// Persist even when no update was drained: processors may have
	// changed flags, which marks chunks dirty too.
	updated := e.drainUpdates()
	if err := e.persistDirty(); err != nil {
		e.log.Printf("persist after update failed: %v", err)
	}

	e.mu.Lock()
	e.lastTickedAt = time.Now()
	e.mu.Unlock()

	more := addedNodes > 0 || addedEdges > 0 || updated > 0
	if more {
		e.requestTick()
	}
	return TickResult{
		NodesAdded:   addedNodes,
		EdgesAdded:   addedEdges,
		NodesUpdated: updated,
		NodesReady:   more,
	}
}

func (e *Engine) requestTick() {
	e.mu.Lock()
	cb := e.onTickLater
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// drainAdds moves the pending-add buffer aside, assigns each node to the
// node table, indexes its labels and dedup keys, and returns how many
// were added.
func (e *Engine) drainAdds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pendingAdds) == 0 {
		return 0
	}
	adds := e.pendingAdds
	e.pendingAdds = nil
	for _, p := range adds {
		n := &NodeItem{ID: p.id, Payload: p.payload, Labels: p.labels, WrittenAt: time.Now()}
		e.nodes.put(n)
		e.indexLabels(p.id, p.labels)
		e.indexNew(p.id, p.payload, p.labels)
	}
	return len(adds)
}

// drainEdges moves the pending-edge buffer aside and wires each pair into
// the edge index. An edge referencing a missing endpoint is logged and
// skipped, never partially applied.
func (e *Engine) drainEdges() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pendingEdges) == 0 {
		return 0
	}
	pending := e.pendingEdges
	e.pendingEdges = nil
	count := 0
	for _, p := range pending {
		if _, ok := e.nodes.get(p.from); !ok {
			e.log.Printf("skipping edge %d->%d: missing source node", p.from, p.to)
			continue
		}
		if _, ok := e.nodes.get(p.to); !ok {
			e.log.Printf("skipping edge %d->%d: missing target node", p.from, p.to)
			continue
		}
		e.edges.add(p.from, p.to, p.labelForward)
		count++
	}
	return count
}

// drainUpdates moves the pending-update buffer aside and applies each
// payload swap in order; every swap stamps WrittenAt.
func (e *Engine) drainUpdates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pendingUpdates) == 0 {
		return 0
	}
	updates := e.pendingUpdates
	e.pendingUpdates = nil
	for _, u := range updates {
		n, ok := e.nodes.get(u.id)
		if !ok {
			e.log.Printf("skipping update for missing node %d", u.id)
			continue
		}
		n.Payload = u.payload
		n.WrittenAt = time.Now()
		e.nodes.put(n)
	}
	return len(updates)
}

// processNodes iterates every node in id order and, if it is not flagged
// IS_PROCESSED and any of its accumulated labels has a registered
// processor, invokes it. A node's implicit payload-variant label
// (Labels[0]) is checked first, so payload-specific processors (Link,
// Domain, WebPage...) keep taking priority; this also picks up processors
// registered against a label attached on top of a shared payload variant,
// such as a Text node additionally labeled Objective or WebSearch.
// Processor errors are logged and mark the node HAD_ERROR; they never
// abort the tick.
func (e *Engine) processNodes(ctx context.Context) {
	e.mu.Lock()
	ids := make([]NodeID, 0, len(e.nodes.data))
	for id := range e.nodes.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	processors := e.processors
	e.mu.Unlock()

	for _, id := range ids {
		e.mu.Lock()
		n, ok := e.nodes.get(id)
		if !ok || n.Flags.Has(FlagIsProcessed) {
			e.mu.Unlock()
			continue
		}
		var proc Processor
		var label Label
		for _, l := range n.Labels {
			if p, hasProcessor := processors[l]; hasProcessor {
				proc, label = p, l
				break
			}
		}
		e.mu.Unlock()
		if proc == nil {
			continue
		}
		if err := proc(ctx, e, id); err != nil {
			e.log.Printf("processor %s failed for node %d: %v", label, id, err)
			e.mu.Lock()
			if n, ok := e.nodes.get(id); ok {
				n.Flags = n.Flags.Set(FlagHadError)
				n.WrittenAt = time.Now()
				e.nodes.put(n)
			}
			e.mu.Unlock()
		}
	}
}

// persistDirty rewrites every node and edge chunk touched since the last
// flush and calls Flush on the backing store.
func (e *Engine) persistDirty() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.nodes.saveAll(e.store); err != nil {
		return err
	}
	if err := e.edges.saveAll(e.store); err != nil {
		return err
	}
	return e.store.Flush()
}

// takeFetchResult removes and returns the pending fetch result for id, if
// FetchAPI's goroutine has recorded one. Used by processors (e.g. Link)
// that need to react to a completed fetch during node processing.
func (e *Engine) takeFetchResult(id NodeID) (FetchResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, fr := range e.fetchResults {
		if fr.nodeID == id {
			e.fetchResults = append(e.fetchResults[:i], e.fetchResults[i+1:]...)
			return fr.result, true
		}
	}
	return FetchResult{}, false
}
