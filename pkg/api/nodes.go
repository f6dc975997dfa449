package api

import (
	"net/http"

	"github.com/autobot/fleet/pkg/types"
	"github.com/gorilla/mux"
)

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.registry.ListNodes()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if nodes == nil {
		nodes = []*types.Node{}
	}
	s.writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var node types.Node
	if !s.decode(w, r, &node) {
		return
	}
	created, err := s.registry.RegisterNode(&node)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.registry.GetNode(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeregisterNode(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeregisterNode(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	nr, err := s.registry.AssignRole(vars["id"], vars["name"], types.AssignmentManual)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, nr)
}

func (s *Server) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.registry.UnassignRole(vars["id"], vars["name"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.registry.ListRoles()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if roles == nil {
		roles = []*types.Role{}
	}
	s.writeJSON(w, http.StatusOK, roles)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var role types.Role
	if !s.decode(w, r, &role) {
		return
	}
	created, err := s.registry.CreateRole(&role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := s.registry.GetRole(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var role types.Role
	if !s.decode(w, r, &role) {
		return
	}
	role.Name = mux.Vars(r)["name"]
	if err := s.registry.UpdateRole(&role); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteRole(mux.Vars(r)["name"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCodeSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListCodeSources()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sources == nil {
		sources = []*types.CodeSource{}
	}
	s.writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleCreateCodeSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID   string `json:"node_id"`
		RepoPath string `json:"repo_path"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	src, err := s.registry.SetCodeSource(req.NodeID, req.RepoPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleActivateCodeSource(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.ActivateCodeSource(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	src, err := s.registry.ActiveCodeSource()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, src)
}
