// Package registry manages the process-wide Project and Workspace
// records that sit above the per-project graph engines.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixlieai/graphengine/pkg/kv"
)

// ProjectOwner tags who a project belongs to: the local user, a named
// user, or an organization.
type ProjectOwner struct {
	Kind  string `json:"kind"` // "myself", "user", "organization"
	Value string `json:"value,omitempty"`
}

// Project is one crawl/analysis project, each with its own graph engine
// and on-disk store.
type Project struct {
	UUID        string       `json:"uuid"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Owner       ProjectOwner `json:"owner"`
}

// Workspace holds the process-wide settings that PUT /api/settings
// mirrors into the registry. GET /api/settings reads the settings file,
// not the registry.
type Workspace struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name,omitempty"`
	Settings any    `json:"settings,omitempty"`
}

// Registry is the process-wide store of Project and Workspace records,
// backed by a single kv.Store shared across the whole process.
type Registry struct {
	store kv.Store
}

// New wraps store as a Registry.
func New(store kv.Store) *Registry {
	return &Registry{store: store}
}

// CreateProject allocates a new Project with a random uuid, persists it,
// and appends it to the project/ids index.
func (r *Registry) CreateProject(name, description string) (Project, error) {
	p := Project{
		UUID:        uuid.NewString(),
		Name:        name,
		Description: description,
		Owner:       ProjectOwner{Kind: "myself"},
	}
	if err := r.putProject(p); err != nil {
		return Project{}, err
	}
	ids, err := r.projectIDs()
	if err != nil {
		return Project{}, err
	}
	ids = append(ids, p.UUID)
	if err := r.putProjectIDs(ids); err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProject reads a single project by uuid.
func (r *Registry) GetProject(id string) (Project, error) {
	raw, ok, err := r.store.Get(projectKey(id))
	if err != nil {
		return Project{}, fmt.Errorf("registry: read project %s: %w", id, err)
	}
	if !ok {
		return Project{}, fmt.Errorf("registry: project %s not found", id)
	}
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return Project{}, fmt.Errorf("registry: decode project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns every known project, in the order they were
// created.
func (r *Registry) ListProjects() ([]Project, error) {
	ids, err := r.projectIDs()
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProject(id)
		if err != nil {
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (r *Registry) putProject(p Project) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("registry: encode project: %w", err)
	}
	if err := r.store.Put(projectKey(p.UUID), raw); err != nil {
		return fmt.Errorf("registry: write project: %w", err)
	}
	return r.store.Flush()
}

func (r *Registry) projectIDs() ([]string, error) {
	return r.readIDs(projectIDsKey())
}

func (r *Registry) putProjectIDs(ids []string) error {
	return r.writeIDs(projectIDsKey(), ids)
}

// CreateWorkspace allocates a new Workspace with a random uuid.
func (r *Registry) CreateWorkspace(name string) (Workspace, error) {
	w := Workspace{UUID: uuid.NewString(), Name: name}
	if err := r.putWorkspace(w); err != nil {
		return Workspace{}, err
	}
	ids, err := r.readIDs(workspaceIDsKey())
	if err != nil {
		return Workspace{}, err
	}
	ids = append(ids, w.UUID)
	if err := r.writeIDs(workspaceIDsKey(), ids); err != nil {
		return Workspace{}, err
	}
	return w, nil
}

// DefaultWorkspaceID names the single process-wide workspace record that
// mirrors the settings file into the registry store, populating the
// workspace/<uuid> key names alongside project/<uuid>.
const DefaultWorkspaceID = "default"

// EnsureWorkspace returns the workspace with the given id, creating it
// with that exact id (bypassing the random uuid CreateWorkspace assigns)
// if it does not exist yet. Safe to call on every process start.
func (r *Registry) EnsureWorkspace(id, name string) (Workspace, error) {
	w, err := r.GetWorkspace(id)
	if err == nil {
		return w, nil
	}
	w = Workspace{UUID: id, Name: name}
	if err := r.putWorkspace(w); err != nil {
		return Workspace{}, err
	}
	ids, err := r.readIDs(workspaceIDsKey())
	if err != nil {
		return Workspace{}, err
	}
	ids = append(ids, w.UUID)
	if err := r.writeIDs(workspaceIDsKey(), ids); err != nil {
		return Workspace{}, err
	}
	return w, nil
}

// GetWorkspace reads a single workspace by uuid.
func (r *Registry) GetWorkspace(id string) (Workspace, error) {
	raw, ok, err := r.store.Get(workspaceKey(id))
	if err != nil {
		return Workspace{}, fmt.Errorf("registry: read workspace %s: %w", id, err)
	}
	if !ok {
		return Workspace{}, fmt.Errorf("registry: workspace %s not found", id)
	}
	var w Workspace
	if err := json.Unmarshal(raw, &w); err != nil {
		return Workspace{}, fmt.Errorf("registry: decode workspace %s: %w", id, err)
	}
	return w, nil
}

// UpdateWorkspaceSettings replaces the settings of workspace id with
// settings and persists it.
func (r *Registry) UpdateWorkspaceSettings(id string, settings any) (Workspace, error) {
	w, err := r.GetWorkspace(id)
	if err != nil {
		return Workspace{}, err
	}
	w.Settings = settings
	if err := r.putWorkspace(w); err != nil {
		return Workspace{}, err
	}
	return w, nil
}

func (r *Registry) putWorkspace(w Workspace) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("registry: encode workspace: %w", err)
	}
	if err := r.store.Put(workspaceKey(w.UUID), raw); err != nil {
		return fmt.Errorf("registry: write workspace: %w", err)
	}
	return r.store.Flush()
}

func (r *Registry) readIDs(key []byte) ([]string, error) {
	raw, ok, err := r.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("registry: read ids: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("registry: decode ids: %w", err)
	}
	return ids, nil
}

func (r *Registry) writeIDs(key []byte, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("registry: encode ids: %w", err)
	}
	if err := r.store.Put(key, raw); err != nil {
		return fmt.Errorf("registry: write ids: %w", err)
	}
	return r.store.Flush()
}
