package graph

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/pixlieai/graphengine/pkg/kv"
)

// connection is one directed edge target stored against a source node id.
type connection struct {
	To    NodeID    `json:"to"`
	Label EdgeLabel `json:"label"`
}

// edgeStore holds the full adjacency map in memory and persists it to a
// kv.Store in fixed-size chunks keyed by the source node id. Edges are
// kept in their own chunk space, never serialized alongside the node
// they originate from.
type edgeStore struct {
	chunkSize int
	data      map[NodeID][]connection
	dirty     map[uint32]bool
}

func newEdgeStore(chunkSize int) *edgeStore {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &edgeStore{
		chunkSize: chunkSize,
		data:      make(map[NodeID][]connection),
		dirty:     make(map[uint32]bool),
	}
}

// add records a directed edge from -> to, plus its declared inverse if one
// exists, and marks both endpoints' chunks dirty. Duplicate (to, label)
// pairs against the same source are not re-added.
func (s *edgeStore) add(from, to NodeID, label EdgeLabel) {
	s.addOne(from, to, label)
	if inv, ok := label.Inverse(); ok {
		s.addOne(to, from, inv)
	}
}

func (s *edgeStore) addOne(from, to NodeID, label EdgeLabel) {
	for _, c := range s.data[from] {
		if c.To == to && c.Label == label {
			return
		}
	}
	s.data[from] = append(s.data[from], connection{To: to, Label: label})
	s.dirty[chunkIDFor(from, s.chunkSize)] = true
}

// neighbors returns the connections recorded for node id, optionally
// filtered to a single label when label != "".
func (s *edgeStore) neighbors(id NodeID, label EdgeLabel) []NodeID {
	var out []NodeID
	for _, c := range s.data[id] {
		if label == "" || c.Label == label {
			out = append(out, c.To)
		}
	}
	return out
}

// chunkEntry is the on-disk shape of one (node id, edges) pair.
type chunkEntry struct {
	ID    NodeID       `json:"id"`
	Edges []connection `json:"edges"`
}

// saveChunk persists the chunk owning node id, covering every source node
// in that id's [lo, hi] range, matching save_item_chunk_to_disk.
func (s *edgeStore) saveChunk(store kv.Store, id NodeID) error {
	chunkID := chunkIDFor(id, s.chunkSize)
	return s.writeChunk(store, chunkID)
}

func (s *edgeStore) writeChunk(store kv.Store, chunkID uint32) error {
	lo, hi := chunkRange(chunkID, s.chunkSize)
	var entries []chunkEntry
	for nodeID, edges := range s.data {
		if nodeID < lo || nodeID > hi {
			continue
		}
		entries = append(entries, chunkEntry{ID: nodeID, Edges: edges})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	raw, err := json.Marshal(entries)
	if err != nil {
		return newSerializationError("encode edge chunk %d: %v", chunkID, err)
	}
	if err := store.Put(edgesChunkKey(chunkID), raw); err != nil {
		return newStoreError("write edge chunk %d: %v", chunkID, err)
	}
	return s.bumpLastChunk(store, chunkID)
}

func (s *edgeStore) bumpLastChunk(store kv.Store, chunkID uint32) error {
	raw, ok, err := store.Get(edgesLastChunkKey())
	if err != nil {
		return newStoreError("read edges last_chunk_id: %v", err)
	}
	if ok {
		var last uint32
		if err := json.Unmarshal(raw, &last); err == nil && last >= chunkID {
			return nil
		}
	}
	encoded, err := json.Marshal(chunkID)
	if err != nil {
		return err
	}
	if err := store.Put(edgesLastChunkKey(), encoded); err != nil {
		return newStoreError("write edges last_chunk_id: %v", err)
	}
	return nil
}

// saveAll rewrites every dirty chunk and clears the dirty set. Called at
// the end of a tick.
func (s *edgeStore) saveAll(store kv.Store) error {
	for chunkID := range s.dirty {
		if err := s.writeChunk(store, chunkID); err != nil {
			return err
		}
	}
	s.dirty = make(map[uint32]bool)
	return nil
}

// loadAll replaces the in-memory adjacency map with the contents of every
// edges/chunk/* key found in store. A chunk that fails to decode is logged
// and skipped rather than aborting the whole load.
func (s *edgeStore) loadAll(store kv.Store, logger *log.Logger) error {
	it, err := store.PrefixScan(edgesChunkPrefix())
	if err != nil {
		return newStoreError("scan edge chunks: %v", err)
	}
	defer it.Close()
	s.data = make(map[NodeID][]connection)
	for it.Next() {
		var entries []chunkEntry
		if err := json.Unmarshal(it.Entry().Value, &entries); err != nil {
			logger.Printf("skipping corrupt edge chunk %q: %v", it.Entry().Key, err)
			continue
		}
		for _, e := range entries {
			s.data[e.ID] = e.Edges
		}
	}
	return it.Err()
}
