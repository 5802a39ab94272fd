package rbac

type Role string
type Action string

const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleAdmin       Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionSuggest Action = "suggest"
	ActionWrite   Action = "write"
	ActionReview  Action = "review"
	ActionAdmin   Action = "admin"
)

// Can reports whether role may perform action. Anonymous visitors are
// treated as viewers that may still suggest.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action == ActionRead || action == ActionSuggest || action == ActionWrite || action == ActionReview
	case RoleContributor:
		return action == ActionRead || action == ActionSuggest
	case RoleViewer:
		return action == ActionRead || action == ActionSuggest
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleContributor, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
