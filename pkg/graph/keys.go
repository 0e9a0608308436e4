package graph

import "fmt"

// Key layout for a project's KV store:
//
//	nodes/chunk/<chunk_id>    -> serialized [(id, NodeItem), ...]
//	nodes/last_chunk_id       -> scalar marker of highest written chunk
//	edges/chunk/<chunk_id>    -> serialized [(id, [(neighbor, label), ...]), ...]
//	edges/last_chunk_id       -> scalar marker of highest written chunk

func nodesChunkKey(chunkID uint32) []byte {
	return []byte(fmt.Sprintf("nodes/chunk/%d", chunkID))
}

func nodesLastChunkKey() []byte {
	return []byte("nodes/last_chunk_id")
}

func nodesChunkPrefix() []byte {
	return []byte("nodes/chunk/")
}

func edgesChunkKey(chunkID uint32) []byte {
	return []byte(fmt.Sprintf("edges/chunk/%d", chunkID))
}

func edgesLastChunkKey() []byte {
	return []byte("edges/last_chunk_id")
}

func edgesChunkPrefix() []byte {
	return []byte("edges/chunk/")
}
