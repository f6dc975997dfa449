package api

import (
	"net/http"
	"strconv"

	"github.com/autobot/fleet/pkg/types"
	"github.com/autobot/fleet/pkg/vault"
	"github.com/gorilla/mux"
)

// createCredentialRequest is the only inbound path for plaintext secrets.
type createCredentialRequest struct {
	NodeID        string              `json:"node_id"`
	Name          string              `json:"name"`
	Secret        vault.SecretPayload `json:"secret"`
	DisplayNumber int                 `json:"display_number,omitempty"`
	VNCPort       int                 `json:"vnc_port,omitempty"`
	Port          int                 `json:"port,omitempty"`
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	credType := types.CredentialType(mux.Vars(r)["type"])

	var req createCredentialRequest
	if !s.decode(w, r, &req) {
		return
	}

	cred, err := s.vault.Create(vault.CreateInput{
		NodeID:        req.NodeID,
		Type:          credType,
		Name:          req.Name,
		Secret:        req.Secret,
		DisplayNumber: req.DisplayNumber,
		VNCPort:       req.VNCPort,
		Port:          req.Port,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The stored row carries ciphertext; strip it from the response.
	cred.Data = nil
	s.writeJSON(w, http.StatusCreated, cred)
}

type updateCredentialRequest struct {
	Name          *string              `json:"name,omitempty"`
	IsActive      *bool                `json:"is_active,omitempty"`
	Secret        *vault.SecretPayload `json:"secret,omitempty"`
	DisplayNumber *int                 `json:"display_number,omitempty"`
	VNCPort       *int                 `json:"vnc_port,omitempty"`
	Port          *int                 `json:"port,omitempty"`
}

func (s *Server) handleUpdateCredential(w http.ResponseWriter, r *http.Request) {
	var req updateCredentialRequest
	if !s.decode(w, r, &req) {
		return
	}

	cred, err := s.vault.Update(mux.Vars(r)["id"], vault.UpdateInput{
		Name:          req.Name,
		IsActive:      req.IsActive,
		Secret:        req.Secret,
		DisplayNumber: req.DisplayNumber,
		VNCPort:       req.VNCPort,
		Port:          req.Port,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	cred.Data = nil
	s.writeJSON(w, http.StatusOK, cred)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Delete(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnectionInfo(w http.ResponseWriter, r *http.Request) {
	issueToken := r.URL.Query().Get("token") == "true"

	info, err := s.vault.GetConnectionInfo(mux.Vars(r)["id"], issueToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	payload, err := s.vault.ExchangeToken(req.Token)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListNodeCredentials(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	creds, err := s.vault.ListByNode(mux.Vars(r)["id"], activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]*types.Credential, 0, len(creds))
	for _, cred := range creds {
		scrubbed := *cred
		scrubbed.Data = nil
		out = append(out, &scrubbed)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleListEndpoints returns public connection info for every credential of
// a given type, e.g. all reachable VNC consoles for a fleet dashboard.
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"

	infos, err := s.vault.ListFleetEndpoints(types.CredentialType(mux.Vars(r)["type"]), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if infos == nil {
		infos = []*types.ConnectionInfo{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleExpiringTLS(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "days must be a non-negative integer"})
			return
		}
		days = parsed
	}

	creds, err := s.vault.ListExpiringTLS(days)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]*types.Credential, 0, len(creds))
	for _, cred := range creds {
		scrubbed := *cred
		scrubbed.Data = nil
		out = append(out, &scrubbed)
	}
	s.writeJSON(w, http.StatusOK, out)
}
