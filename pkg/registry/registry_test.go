package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixlieai/graphengine/pkg/kv"
)

func newTestRegistry() *Registry {
	return New(kv.NewMemStore())
}

func TestCreateAndGetProject(t *testing.T) {
	r := newTestRegistry()
	p, err := r.CreateProject("demo", "a demo project")
	require.NoError(t, err)
	assert.NotEmpty(t, p.UUID)
	assert.Equal(t, "myself", p.Owner.Kind)

	got, err := r.GetProject(p.UUID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestGetProjectNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.GetProject("does-not-exist")
	assert.Error(t, err)
}

func TestListProjectsReturnsCreationOrder(t *testing.T) {
	r := newTestRegistry()
	a, err := r.CreateProject("a", "")
	require.NoError(t, err)
	b, err := r.CreateProject("b", "")
	require.NoError(t, err)

	projects, err := r.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, a.UUID, projects[0].UUID)
	assert.Equal(t, b.UUID, projects[1].UUID)
}

func TestCreateAndUpdateWorkspace(t *testing.T) {
	r := newTestRegistry()
	w, err := r.CreateWorkspace("my-workspace")
	require.NoError(t, err)
	assert.NotEmpty(t, w.UUID)

	updated, err := r.UpdateWorkspaceSettings(w.UUID, map[string]string{"anthropic_api_key": "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"anthropic_api_key": "sk-test"}, updated.Settings)

	got, err := r.GetWorkspace(w.UUID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"anthropic_api_key": "sk-test"}, got.Settings)
}

func TestGetWorkspaceNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.GetWorkspace("does-not-exist")
	assert.Error(t, err)
}

func TestEnsureWorkspaceCreatesOnceThenReturnsExisting(t *testing.T) {
	r := newTestRegistry()

	first, err := r.EnsureWorkspace(DefaultWorkspaceID, "default")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkspaceID, first.UUID)

	_, err = r.UpdateWorkspaceSettings(DefaultWorkspaceID, map[string]string{"k": "v"})
	require.NoError(t, err)

	second, err := r.EnsureWorkspace(DefaultWorkspaceID, "default")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, second.Settings)

	ids, err := r.readIDs(workspaceIDsKey())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultWorkspaceID}, ids)
}
