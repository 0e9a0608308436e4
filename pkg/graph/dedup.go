package graph

import "strconv"

// linkDedupKey composes the domain-scoped dedup key for a Link node: the
// same (path, query) under two different domains must never collide.
func linkDedupKey(domainID NodeID, fullPath string) string {
	return strconv.FormatUint(uint64(domainID), 10) + ":" + fullPath
}

// findExisting resolves a payload to an already-stored node id, if the
// payload's variant participates in dedup, by probing incremental index
// maps rather than linearly scanning the label's population (documented
// as a deliberate deviation in DESIGN.md) — this keeps GetOrAddNode O(1)
// instead of O(n) in the label's population.
func (e *Engine) findExisting(p Payload) (NodeID, bool) {
	switch v := p.(type) {
	case DomainPayload:
		id, ok := e.domainIndex[v.Name]
		return id, ok
	case LinkPayload:
		id, ok := e.linkIndex[linkDedupKey(v.domainID, v.FullPath())]
		return id, ok
	case TextPayload:
		return 0, false // resolved by label at the call site, see dedupText
	}
	return 0, false
}

// dedupText resolves a TextPayload against the canonical-label index, for
// the labels where Text dedup applies.
func (e *Engine) dedupText(content string, labels []Label) (NodeID, bool) {
	for _, l := range labels {
		if !canonicalTextLabels[l] {
			continue
		}
		idx, ok := e.textIndex[l]
		if !ok {
			continue
		}
		if id, ok := idx[content]; ok {
			return id, true
		}
	}
	return 0, false
}

// indexNew records a freshly-added node in the dedup indexes it
// participates in. Called once per node from drainAdds (and from
// rebuildIndexes when a project is opened), never retroactively on label
// changes.
func (e *Engine) indexNew(id NodeID, p Payload, labels []Label) {
	switch v := p.(type) {
	case DomainPayload:
		e.domainIndex[v.Name] = id
	case LinkPayload:
		e.linkIndex[linkDedupKey(v.domainID, v.FullPath())] = id
	case TextPayload:
		for _, l := range labels {
			if !canonicalTextLabels[l] {
				continue
			}
			idx, ok := e.textIndex[l]
			if !ok {
				idx = make(map[string]NodeID)
				e.textIndex[l] = idx
			}
			idx[v.Content] = id
		}
	}
}
