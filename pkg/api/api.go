// Package api implements the HTTP surface: settings, projects, and
// per-project engine routes. A plain http.ServeMux built by one
// buildRouter method, JSON in and out, Start/Stop lifecycle.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pixlieai/graphengine/pkg/config"
	"github.com/pixlieai/graphengine/pkg/graph"
	"github.com/pixlieai/graphengine/pkg/registry"
	"github.com/pixlieai/graphengine/pkg/supervisor"
)

// Server is the HTTP front end over a Supervisor and the process-wide
// project Registry.
type Server struct {
	supervisor *supervisor.Supervisor
	registry   *registry.Registry
	configPath string
	httpServer *http.Server
}

// New constructs a Server. configPath is where GET/PUT /api/settings
// reads and writes (see pkg/config.LoadFrom/SaveTo).
func New(sup *supervisor.Supervisor, reg *registry.Registry, configPath string) *Server {
	return &Server{supervisor: sup, registry: reg, configPath: configPath}
}

// Start begins serving on addr in the background. Use Stop for graceful
// shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.buildRouter()}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("api: server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/healthz", s.handleHealthz)

	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/settings/status", s.handleSettingsStatus)

	mux.HandleFunc("/api/projects", s.handleProjects)

	mux.HandleFunc("/api/engine/", s.handleEngine)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := config.LoadFrom(s.configPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var updates config.Settings
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		current, err := config.LoadFrom(s.configPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		merged := config.Merge(current, updates)
		if err := config.SaveTo(s.configPath, merged); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		// Mirror the merged settings into the registry's workspace record.
		// The file stays authoritative for process bootstrap (it must
		// exist before the registry store can even open); the registry
		// copy is what a second process reading only the KV store would
		// see.
		if _, err := s.registry.EnsureWorkspace(registry.DefaultWorkspaceID, "default"); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if _, err := s.registry.UpdateWorkspaceSettings(registry.DefaultWorkspaceID, merged); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, merged)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSettingsStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	settings, err := config.LoadFrom(s.configPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings.Complete())
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.registry.ListProjects()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
	case http.MethodPost:
		var body struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		p, err := s.registry.CreateProject(body.Name, body.Description)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w)
	}
}

// handleEngine dispatches /api/engine/{project_id}/{labels|nodes|query/{node_id}}.
// Path segments are resolved by hand rather than through a router
// dependency — three fixed dynamic route shapes don't warrant one.
func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/engine/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	projectID, sub := parts[0], parts[1]

	eng, err := s.supervisor.Engine(projectID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	switch {
	case sub == "labels":
		s.handleLabels(w, r, eng)
	case sub == "nodes":
		s.handleNodes(w, r, eng)
	case strings.HasPrefix(sub, "query/"):
		s.handleQuery(w, r, eng, strings.TrimPrefix(sub, "query/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request, eng *graph.Engine) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, eng.Labels())
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request, eng *graph.Engine) {
	switch r.Method {
	case http.MethodGet:
		labelParam := r.URL.Query().Get("label")
		var ids []graph.NodeID
		if labelParam != "" {
			ids = eng.GetNodeIDsWithLabel(graph.Label(labelParam))
		} else {
			for _, l := range eng.Labels() {
				ids = append(ids, eng.GetNodeIDsWithLabel(l)...)
			}
		}
		nodes := make([]*graph.NodeItem, 0, len(ids))
		for _, id := range ids {
			n, err := eng.GetNodeByID(id)
			if err != nil {
				continue
			}
			nodes = append(nodes, n)
		}
		writeJSON(w, http.StatusOK, nodes)
	case http.MethodPost:
		s.handleAddNode(w, r, eng)
	default:
		methodNotAllowed(w)
	}
}

// handleAddNode accepts a tagged-union body — currently only
// {"type":"Link","data":{"url":"..."}} — the shape of a
// POST .../nodes call that adds a single link.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request, eng *graph.Engine) {
	var body struct {
		Type string `json:"type"`
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Type != "Link" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: unsupported node type %q", body.Type))
		return
	}
	result, err := eng.GetOrAddLink(body.Data.URL, []graph.Label{graph.LabelAddedByUser})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleQuery returns node_id's own record plus its neighbors grouped by
// edge label — a simple traversal in place of a full query language.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, eng *graph.Engine, nodeIDStr string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, err := strconv.ParseUint(nodeIDStr, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("api: invalid node id %q", nodeIDStr))
		return
	}
	nodeID := graph.NodeID(id)
	node, err := eng.GetNodeByID(nodeID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	neighbors := make(map[graph.EdgeLabel][]graph.NodeID)
	for _, label := range []graph.EdgeLabel{
		graph.EdgeParentOf, graph.EdgeChildOf, graph.EdgeContentOf, graph.EdgePathOf,
		graph.EdgeOwnerOf, graph.EdgeBelongsTo, graph.EdgeRelatedTo, graph.EdgeSuggests,
		graph.EdgeSuggestedFor, graph.EdgeClassifies,
	} {
		if ids, err := eng.GetNodeIDsConnectedWithLabel(nodeID, label); err == nil && len(ids) > 0 {
			neighbors[label] = ids
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Node      *graph.NodeItem                    `json:"node"`
		Neighbors map[graph.EdgeLabel][]graph.NodeID `json:"neighbors"`
	}{Node: node, Neighbors: neighbors})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
