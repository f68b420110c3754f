package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-portal-sessions/auth"
	"github.com/jrsteele09/go-portal-sessions/tabs"
)

type tabResponse struct {
	Success bool           `json:"success"`
	Tab     tabs.TabRecord `json:"tab"`
}

type tabsListResponse struct {
	Success        bool             `json:"success"`
	Tabs           []tabs.TabRecord `json:"tabs"`
	AvailableRoles []tabs.Role      `json:"availableRoles"`
}

type rolesResponse struct {
	Success        bool        `json:"success"`
	AvailableRoles []tabs.Role `json:"availableRoles"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type registerTabRequest struct {
	TabID string `json:"tabId"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type switchRoleRequest struct {
	TargetRole string `json:"targetRole"`
}

// RegisterTabHandler creates a record for a newly opened tab. The tab may
// bring its own identifier (generated on page load); otherwise one is issued.
func (s *Server) RegisterTabHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerTabRequest
		// An empty body is fine; the ID gets generated here.
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.TabID == "" {
			req.TabID = tabs.NewTabID()
		}

		record, err := s.manager.Register(r.Context(), req.TabID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.refresh(r)
		s.writeJSON(w, http.StatusCreated, tabResponse{Success: true, Tab: record})
	}
}

// DeregisterTabHandler removes a tab's record on its unload signal.
func (s *Server) DeregisterTabHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.manager.Deregister(r.Context(), r.PathValue("tabID")); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.refresh(r)
		s.writeJSON(w, http.StatusOK, statusResponse{Success: true})
	}
}

// ListTabsHandler returns every tab record plus the roles still available.
func (s *Server) ListTabsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.manager.List(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		available, err := s.roles.AvailableRoles(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, tabsListResponse{Success: true, Tabs: list, AvailableRoles: available})
	}
}

func (s *Server) GetTabHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.manager.Get(r.Context(), r.PathValue("tabID"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, tabResponse{Success: true, Tab: record})
	}
}

func (s *Server) AvailableRolesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		available, err := s.roles.AvailableRoles(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rolesResponse{Success: true, AvailableRoles: available})
	}
}

// LoginHandler signs the tab in as the requested role.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, statusResponse{Error: "malformed request"})
			return
		}
		role, err := tabs.ParseRole(req.Role)
		if err != nil || role == tabs.RoleNone {
			s.writeJSON(w, http.StatusBadRequest, statusResponse{Error: "unknown role"})
			return
		}

		record, err := s.roles.LoginAsRole(r.Context(), r.PathValue("tabID"), req.Email, req.Password, role)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.refresh(r)
		s.writeJSON(w, http.StatusOK, tabResponse{Success: true, Tab: record})
	}
}

// SwitchRoleHandler moves the tab's session to another role.
func (s *Server) SwitchRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req switchRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, statusResponse{Error: "malformed request"})
			return
		}
		target, err := tabs.ParseRole(req.TargetRole)
		if err != nil || target == tabs.RoleNone {
			s.writeJSON(w, http.StatusBadRequest, statusResponse{Error: "unknown role"})
			return
		}

		record, err := s.roles.SwitchRole(r.Context(), r.PathValue("tabID"), target)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.refresh(r)
		s.writeJSON(w, http.StatusOK, tabResponse{Success: true, Tab: record})
	}
}

// LogoutHandler clears the tab's session locally.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.roles.Logout(r.Context(), r.PathValue("tabID")); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.refresh(r)
		s.writeJSON(w, http.StatusOK, statusResponse{Success: true})
	}
}

func (s *Server) refresh(r *http.Request) {
	if err := s.watcher.Refresh(r.Context()); err != nil {
		s.logger.Err(err).Msg("snapshot refresh failed")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Err(err).Msg("failed to encode response")
	}
}

// writeError maps service errors onto the response envelope the dashboard
// branches on. Backend rejection messages pass through verbatim; internal
// failures are logged and masked.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rejection *auth.RejectionError

	switch {
	case errors.As(err, &rejection):
		s.writeJSON(w, http.StatusUnauthorized, statusResponse{Error: rejection.Message})
	case errors.Is(err, auth.ErrNoActiveSession):
		s.writeJSON(w, http.StatusConflict, statusResponse{Error: auth.ErrNoActiveSession.Error()})
	case errors.Is(err, auth.ErrBackendUnavailable):
		s.writeJSON(w, http.StatusBadGateway, statusResponse{Error: auth.ErrBackendUnavailable.Error()})
	case errors.Is(err, tabs.ErrTabNotFound):
		s.writeJSON(w, http.StatusNotFound, statusResponse{Error: tabs.ErrTabNotFound.Error()})
	default:
		s.logger.Err(err).Str("path", r.URL.Path).Msg("request failed")
		s.writeJSON(w, http.StatusInternalServerError, statusResponse{Error: "internal error"})
	}
}
