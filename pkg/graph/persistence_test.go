package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlieai/graphengine/pkg/kv"
)

func TestReopenProjectResumesNodesEdgesAndIDAllocation(t *testing.T) {
	store := kv.NewMemStore()

	eng, err := OpenProject("test-project", store, EngineOptions{})
	require.NoError(t, err)

	a, err := eng.GetOrAddNode(TextPayload{Content: "a"}, []Label{LabelParagraph}, true)
	require.NoError(t, err)
	b, err := eng.GetOrAddNode(TextPayload{Content: "b"}, []Label{LabelParagraph}, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)
	eng.AddConnection(a.ID, b.ID, EdgeParentOf, EdgeChildOf)
	tickUntilDry(t, eng)

	reopened, err := OpenProject("test-project", store, EngineOptions{})
	require.NoError(t, err)

	gotA, err := reopened.GetNodeByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, TextPayload{Content: "a"}, gotA.Payload)

	children, err := reopened.GetNodeIDsConnectedWithLabel(a.ID, EdgeParentOf)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{b.ID}, children)

	assert.Equal(t, []NodeID{a.ID, b.ID}, reopened.GetNodeIDsWithLabel(LabelParagraph))

	next, err := reopened.GetOrAddNode(TextPayload{Content: "c"}, []Label{LabelParagraph}, true)
	require.NoError(t, err)
	assert.Greater(t, next.ID, b.ID)
}

func TestReopenEmptyProjectStartsAtIDZero(t *testing.T) {
	store := kv.NewMemStore()
	eng, err := OpenProject("fresh-project", store, EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, NodeID(0), eng.lastNodeID)
	assert.False(t, eng.NeedsToTick())
}

func TestReopenProjectKeepsLinkDedupScopedPerDomain(t *testing.T) {
	store := kv.NewMemStore()

	eng, err := OpenProject("link-dedup-project", store, EngineOptions{})
	require.NoError(t, err)

	a, err := eng.GetOrAddLink("https://a.example.com/about", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)
	b, err := eng.GetOrAddLink("https://b.example.com/about", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)
	require.NoError(t, eng.persistDirty())

	reopened, err := OpenProject("link-dedup-project", store, EngineOptions{})
	require.NoError(t, err)

	againA, err := reopened.GetOrAddLink("https://a.example.com/about", nil)
	require.NoError(t, err)
	assert.Equal(t, NodeStateExisting, againA.State)
	assert.Equal(t, a.ID, againA.ID)

	againB, err := reopened.GetOrAddLink("https://b.example.com/about", nil)
	require.NoError(t, err)
	assert.Equal(t, NodeStateExisting, againB.State)
	assert.Equal(t, b.ID, againB.ID)
}

func TestReopenProjectSkipsCorruptNodeChunkAndLoadsTheRest(t *testing.T) {
	store := kv.NewMemStore()

	eng, err := OpenProject("corrupt-chunk-project", store, EngineOptions{ChunkSize: 2})
	require.NoError(t, err)
	good, err := eng.GetOrAddNode(TextPayload{Content: "survives"}, []Label{LabelParagraph}, true)
	require.NoError(t, err)
	tickUntilDry(t, eng)
	require.NoError(t, eng.persistDirty())

	// A node id big enough to land in its own chunk, corrupted directly in
	// the backing store so it never went through a real write path.
	require.NoError(t, store.Put(nodesChunkKey(chunkIDFor(good.ID+100, 2)), []byte("not json")))

	reopened, err := OpenProject("corrupt-chunk-project", store, EngineOptions{ChunkSize: 2})
	require.NoError(t, err, "a corrupt chunk must not abort the whole load")

	_, err = reopened.GetNodeByID(good.ID)
	require.NoError(t, err)
}

func TestNodeStoreSpansMultipleChunks(t *testing.T) {
	store := kv.NewMemStore()
	eng, err := OpenProject("chunked-project", store, EngineOptions{ChunkSize: 2})
	require.NoError(t, err)

	ids := make([]NodeID, 0, 5)
	for i := 0; i < 5; i++ {
		r, err := eng.GetOrAddNode(TextPayload{Content: string(rune('a' + i))}, []Label{LabelParagraph}, true)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	tickUntilDry(t, eng)
	require.NoError(t, eng.persistDirty())

	reopened, err := OpenProject("chunked-project", store, EngineOptions{ChunkSize: 2})
	require.NoError(t, err)
	for _, id := range ids {
		_, err := reopened.GetNodeByID(id)
		require.NoError(t, err)
	}
}
