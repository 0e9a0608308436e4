package graph

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/pixlieai/graphengine/pkg/kv"
)

// nodeStore holds every node in memory, keyed by id, and persists it to a
// kv.Store in fixed-size chunks: a save-all pass over every dirty chunk,
// a per-chunk write, and a load pass that rebuilds the in-memory map.
type nodeStore struct {
	chunkSize int
	data      map[NodeID]*NodeItem
	dirty     map[uint32]bool
}

func newNodeStore(chunkSize int) *nodeStore {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &nodeStore{
		chunkSize: chunkSize,
		data:      make(map[NodeID]*NodeItem),
		dirty:     make(map[uint32]bool),
	}
}

func (s *nodeStore) get(id NodeID) (*NodeItem, bool) {
	n, ok := s.data[id]
	return n, ok
}

// put inserts or replaces a node and marks its chunk dirty.
func (s *nodeStore) put(n *NodeItem) {
	s.data[n.ID] = n
	s.dirty[chunkIDFor(n.ID, s.chunkSize)] = true
}

type nodeChunkEntry struct {
	ID   NodeID    `json:"id"`
	Node *NodeItem `json:"node"`
}

func (s *nodeStore) writeChunk(store kv.Store, chunkID uint32) error {
	lo, hi := chunkRange(chunkID, s.chunkSize)
	var entries []nodeChunkEntry
	for id, n := range s.data {
		if id < lo || id > hi {
			continue
		}
		entries = append(entries, nodeChunkEntry{ID: id, Node: n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	raw, err := json.Marshal(entries)
	if err != nil {
		return newSerializationError("encode node chunk %d: %v", chunkID, err)
	}
	if err := store.Put(nodesChunkKey(chunkID), raw); err != nil {
		return newStoreError("write node chunk %d: %v", chunkID, err)
	}
	return s.bumpLastChunk(store, chunkID)
}

func (s *nodeStore) bumpLastChunk(store kv.Store, chunkID uint32) error {
	raw, ok, err := store.Get(nodesLastChunkKey())
	if err != nil {
		return newStoreError("read nodes last_chunk_id: %v", err)
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
	if err := store.Put(nodesLastChunkKey(), encoded); err != nil {
		return newStoreError("write nodes last_chunk_id: %v", err)
	}
	return nil
}

// saveChunk persists just the chunk owning id, outside of a full
// saveAll flush. Nothing in the package calls it at present.
func (s *nodeStore) saveChunk(store kv.Store, id NodeID) error {
	return s.writeChunk(store, chunkIDFor(id, s.chunkSize))
}

// saveAll rewrites every dirty chunk and clears the dirty set.
func (s *nodeStore) saveAll(store kv.Store) error {
	for chunkID := range s.dirty {
		if err := s.writeChunk(store, chunkID); err != nil {
			return err
		}
	}
	s.dirty = make(map[uint32]bool)
	return nil
}

// loadAll replaces the in-memory node map with the contents of every
// nodes/chunk/* key found in store, and returns the highest node id seen
// so the engine can resume id allocation from there. A chunk that fails to
// decode is logged and skipped rather than aborting the whole load: a
// corrupt chunk permanently cuts off any id range beyond it otherwise.
func (s *nodeStore) loadAll(store kv.Store, logger *log.Logger) (NodeID, error) {
	it, err := store.PrefixScan(nodesChunkPrefix())
	if err != nil {
		return 0, newStoreError("scan node chunks: %v", err)
	}
	defer it.Close()
	s.data = make(map[NodeID]*NodeItem)
	var maxID NodeID
	for it.Next() {
		var entries []nodeChunkEntry
		if err := json.Unmarshal(it.Entry().Value, &entries); err != nil {
			logger.Printf("skipping corrupt node chunk %q: %v", it.Entry().Key, err)
			continue
		}
		for _, e := range entries {
			s.data[e.ID] = e.Node
			if e.ID > maxID {
				maxID = e.ID
			}
		}
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	return maxID, nil
}
