// Package rbac decides what an actor may do on a board and everything
// beneath it (lists, cards, comments, attachments).
package rbac

type Role string
type Action string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

const (
	ActionRead       Action = "read"
	ActionWrite      Action = "write"
	ActionAdminister Action = "administer"
)

// Can reports whether role may perform action. Only owner versus non-owner is
// enforced today: admin is accepted as a membership role but grants nothing
// beyond member.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleAdmin, RoleMember:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// Resolve derives the actor's effective role on a board from the board owner
// and the actor's membership role (empty when the actor is not a member).
func Resolve(actorID, ownerID, membershipRole string) Role {
	if actorID == "" {
		return RoleNone
	}
	if actorID == ownerID {
		return RoleOwner
	}
	if membershipRole == "" {
		return RoleNone
	}
	return Normalize(membershipRole)
}

// Normalize maps a stored membership role onto a known role; unknown values
// fall back to member.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}

// CanDeleteAuthored covers comments and attachments, which their author may
// remove in addition to the board owner.
func CanDeleteAuthored(role Role, actorID, authorID string) bool {
	if actorID != "" && actorID == authorID && role != RoleNone {
		return true
	}
	return Can(role, ActionAdminister)
}
