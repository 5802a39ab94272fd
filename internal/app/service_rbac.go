package app

import (
	"context"
	"net/http"
	"strings"

	"wikidraft/api/internal/rbac"
	"wikidraft/api/internal/store"
)

// GetUser returns one account for the admin screen.
func (s *Service) GetUser(ctx context.Context, session Session, userID int64) (store.User, error) {
	if !s.Can(session, rbac.ActionAdmin) {
		return store.User{}, errForbidden
	}
	return s.store.GetUserByID(ctx, userID)
}

// UpdateUserRole changes a user's wiki role. Unknown role names are
// rejected instead of silently becoming viewer.
func (s *Service) UpdateUserRole(ctx context.Context, session Session, userID int64, role string) (store.User, error) {
	if !s.Can(session, rbac.ActionAdmin) {
		return store.User{}, errForbidden
	}
	role = strings.ToLower(strings.TrimSpace(role))
	normalized := rbac.Normalize(role)
	if string(normalized) != role {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown role", map[string]any{"role": role})
	}
	if userID == session.UserID && normalized != rbac.RoleAdmin {
		return store.User{}, domainError(http.StatusConflict, "SELF_DEMOTION", "Admins cannot demote themselves", nil)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if err := s.store.SetUserRole(ctx, userID, string(normalized)); err != nil {
		return store.User{}, err
	}
	user.Role = string(normalized)
	return user, nil
}
