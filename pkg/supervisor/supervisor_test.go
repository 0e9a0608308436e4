package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlieai/graphengine/pkg/event"
	"github.com/pixlieai/graphengine/pkg/fetcher"
	"github.com/pixlieai/graphengine/pkg/graph"
	"github.com/pixlieai/graphengine/pkg/kv"
)

func newTestSupervisor() (*Supervisor, map[string]int) {
	opens := make(map[string]int)
	factory := func(projectID string, onTickLater func(), onFetchResult func(graph.NodeID, graph.FetchResult, error)) (*graph.Engine, error) {
		opens[projectID]++
		return graph.OpenProject(projectID, kv.NewMemStore(), graph.EngineOptions{OnTickLater: onTickLater, OnFetchResult: onFetchResult})
	}
	return New(factory, fetcher.New()), opens
}

func TestEngineOpensLazilyAndOnlyOnce(t *testing.T) {
	s, opens := newTestSupervisor()

	_, err := s.Engine("proj-1")
	require.NoError(t, err)
	_, err = s.Engine("proj-1")
	require.NoError(t, err)

	assert.Equal(t, 1, opens["proj-1"])
}

func TestEngineForDistinctProjectsOpensDistinctEngines(t *testing.T) {
	s, opens := newTestSupervisor()

	_, err := s.Engine("proj-1")
	require.NoError(t, err)
	_, err = s.Engine("proj-2")
	require.NoError(t, err)

	assert.Equal(t, 1, opens["proj-1"])
	assert.Equal(t, 1, opens["proj-2"])
}

func TestHandleTickLaterCoalescesIntoPendingSet(t *testing.T) {
	s, _ := newTestSupervisor()
	s.handle(context.Background(), event.NewTickLater(event.TickLater{ProjectID: "proj-1"}))

	s.mu.Lock()
	pending := s.pendingTick["proj-1"]
	s.mu.Unlock()
	assert.True(t, pending)
}

func TestEngineOnTickLaterSchedulesAPendingTick(t *testing.T) {
	s, _ := newTestSupervisor()
	eng, err := s.Engine("proj-1")
	require.NoError(t, err)

	_, err = eng.GetOrAddNode(graph.LinkPayload{Path: "/x"}, nil, true)
	require.NoError(t, err)

	select {
	case e := <-s.events:
		s.handle(context.Background(), e)
	case <-time.After(time.Second):
		t.Fatal("OnTickLater never reached the supervisor's event channel")
	}

	s.mu.Lock()
	pending := s.pendingTick["proj-1"]
	s.mu.Unlock()
	assert.True(t, pending, "adding a node should reach the supervisor through OnTickLater, not require a manual Tick call")
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, req graph.FetchRequest) (graph.FetchResult, error) {
	return graph.FetchResult{URL: req.URL, Contents: "ok"}, nil
}

func TestFetchResultRoutesThroughSupervisorEventLoop(t *testing.T) {
	opens := make(map[string]int)
	factory := func(projectID string, onTickLater func(), onFetchResult func(graph.NodeID, graph.FetchResult, error)) (*graph.Engine, error) {
		opens[projectID]++
		return graph.OpenProject(projectID, kv.NewMemStore(), graph.EngineOptions{
			OnTickLater:   onTickLater,
			OnFetchResult: onFetchResult,
			Fetcher:       stubFetcher{},
		})
	}
	s := New(factory, fetcher.New())

	eng, err := s.Engine("proj-1")
	require.NoError(t, err)

	n, err := eng.GetOrAddNode(graph.DomainPayload{Name: "example.com"}, nil, true)
	require.NoError(t, err)
	eng.Tick(context.Background())

	require.NoError(t, eng.FetchAPI(context.Background(), graph.FetchRequest{NodeID: n.ID, Method: "GET", URL: "https://example.com"}))

	// The add and the tick each queue a TickLater on the same channel
	// ahead of the fetch completion; handle those and keep waiting.
	deadline := time.After(2 * time.Second)
wait:
	for {
		select {
		case e := <-s.events:
			if e.Kind == event.KindTickLater {
				s.handle(context.Background(), e)
				continue
			}
			require.Equal(t, event.KindFetchResponse, e.Kind)
			s.handle(context.Background(), e)
			break wait
		case <-deadline:
			t.Fatal("fetch completion never reached the supervisor's event channel")
		}
	}

	got, err := eng.GetNodeByID(n.ID)
	require.NoError(t, err)
	assert.False(t, got.Flags.Has(graph.FlagIsRequesting), "ApplyFetchResult, run from the supervisor's event loop, should have cleared IS_REQUESTING")

	s.mu.Lock()
	pending := s.pendingTick["proj-1"]
	s.mu.Unlock()
	assert.True(t, pending)
}

func TestHandleEngineExitRemovesEngine(t *testing.T) {
	s, _ := newTestSupervisor()
	_, err := s.Engine("proj-1")
	require.NoError(t, err)

	s.handle(context.Background(), event.NewEngineExit(event.EngineExit{ProjectID: "proj-1"}))

	s.mu.Lock()
	_, ok := s.engines["proj-1"]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestHandleAPIRequestSchedulesATick(t *testing.T) {
	s, _ := newTestSupervisor()
	reply := make(chan event.APIResponse, 1)
	s.handle(context.Background(), event.NewAPIRequest(event.APIRequest{ProjectID: "proj-1", Reply: reply}))

	resp := <-reply
	assert.NoError(t, resp.Err)

	s.mu.Lock()
	pending := s.pendingTick["proj-1"]
	s.mu.Unlock()
	assert.True(t, pending)
}

func TestDrainPendingTicksClearsTheSet(t *testing.T) {
	s, _ := newTestSupervisor()
	_, err := s.Engine("proj-1")
	require.NoError(t, err)

	s.mu.Lock()
	s.pendingTick["proj-1"] = true
	s.mu.Unlock()

	s.drainPendingTicks()

	s.mu.Lock()
	_, stillPending := s.pendingTick["proj-1"]
	s.mu.Unlock()
	assert.False(t, stillPending)
}

func TestRunStopsOnShutdownEvent(t *testing.T) {
	s, _ := newTestSupervisor()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	s.Send(event.NewShutdown())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown event")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, _ := newTestSupervisor()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
