package app

import (
	"net/http"
	"strconv"
)

// routeAdmin serves /api/admin/users/{id}[/role].
func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) < 4 || parts[0] != "api" || parts[1] != "admin" || parts[2] != "users" {
		return false
	}
	userID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return true
	}

	switch {
	case len(parts) == 4 && r.Method == http.MethodGet:
		s.handleAdminUser(w, r, session, userID)
	case len(parts) == 5 && parts[4] == "role":
		s.handleAdminUserRole(w, r, session, userID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return true
}

func (s *HTTPServer) handleAdminUser(w http.ResponseWriter, r *http.Request, session Session, userID int64) {
	user, err := s.service.GetUser(r.Context(), session, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (s *HTTPServer) handleAdminUserRole(w http.ResponseWriter, r *http.Request, session Session, userID int64) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.UpdateUserRole(r.Context(), session, userID, body.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}
