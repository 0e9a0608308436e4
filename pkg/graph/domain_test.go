package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlieai/graphengine/pkg/kv"
)

func TestGetOrAddLinkCreatesDomainAndWiresOwnership(t *testing.T) {
	eng, err := OpenProject("test-project", kv.NewMemStore(), EngineOptions{})
	require.NoError(t, err)

	link, err := eng.GetOrAddLink("https://example.com/a/b?x=1", nil)
	require.NoError(t, err)
	assert.Equal(t, NodeStateNew, link.State)
	tickUntilDry(t, eng)

	domains := eng.GetNodeIDsWithLabel(LabelDomain)
	require.Len(t, domains, 1)

	owned, err := eng.GetNodeIDsConnectedWithLabel(domains[0], EdgeOwnerOf)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{link.ID}, owned)

	linkNode, err := eng.GetNodeByID(link.ID)
	require.NoError(t, err)
	payload, ok := linkNode.Payload.(LinkPayload)
	require.True(t, ok)
	assert.Equal(t, "/a/b", payload.Path)
	assert.Equal(t, "x=1", payload.Query)
	assert.Equal(t, "/a/b?x=1", payload.FullPath())
}

func TestGetOrAddLinkSameURLDedupsAcrossTicks(t *testing.T) {
	eng, err := OpenProject("test-project", kv.NewMemStore(), EngineOptions{})
	require.NoError(t, err)

	first, err := eng.GetOrAddLink("https://example.com/page", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	second, err := eng.GetOrAddLink("https://example.com/page", nil)
	require.NoError(t, err)
	assert.Equal(t, NodeStateExisting, second.State)
	assert.Equal(t, first.ID, second.ID)

	domains := eng.GetNodeIDsWithLabel(LabelDomain)
	require.Len(t, domains, 1)
}

func TestGetOrAddLinkSecondLinkSharesDomain(t *testing.T) {
	eng, err := OpenProject("test-project", kv.NewMemStore(), EngineOptions{})
	require.NoError(t, err)

	a, err := eng.GetOrAddLink("https://example.com/a", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)
	b, err := eng.GetOrAddLink("https://example.com/b", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	assert.NotEqual(t, a.ID, b.ID)
	domains := eng.GetNodeIDsWithLabel(LabelDomain)
	assert.Len(t, domains, 1)

	owned, err := eng.GetNodeIDsConnectedWithLabel(domains[0], EdgeOwnerOf)
	require.NoError(t, err)
	assert.ElementsMatch(t, []NodeID{a.ID, b.ID}, owned)
}

func TestGetOrAddLinkSamePathDifferentDomainsDoNotCollide(t *testing.T) {
	eng, err := OpenProject("test-project", kv.NewMemStore(), EngineOptions{})
	require.NoError(t, err)

	a, err := eng.GetOrAddLink("https://a.example.com/about", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	b, err := eng.GetOrAddLink("https://b.example.com/about", nil)
	require.NoError(t, err)
	tickUntilDry(t, eng)

	assert.Equal(t, NodeStateNew, b.State)
	assert.NotEqual(t, a.ID, b.ID)

	domains := eng.GetNodeIDsWithLabel(LabelDomain)
	assert.Len(t, domains, 2)

	// Re-requesting the first link's URL must still resolve to the first
	// link, not the second domain's same-path link.
	again, err := eng.GetOrAddLink("https://a.example.com/about", nil)
	require.NoError(t, err)
	assert.Equal(t, NodeStateExisting, again.State)
	assert.Equal(t, a.ID, again.ID)
}

func TestGetOrAddLinkRejectsURLWithoutHost(t *testing.T) {
	eng, err := OpenProject("test-project", kv.NewMemStore(), EngineOptions{})
	require.NoError(t, err)
	_, err = eng.GetOrAddLink("/just/a/path", nil)
	assert.Error(t, err)
}

func TestFullURLForRendersAbsoluteURL(t *testing.T) {
	got := fullURLFor("example.com", LinkPayload{Path: "/a/b", Query: "x=1"})
	assert.Equal(t, "https://example.com/a/b?x=1", got)
}
