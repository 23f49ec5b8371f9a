package auth

import "github.com/spec-kit/factory-support/internal/domain"

// CanAccessIssue decides whether identity may read and write the chat of issue.
// Admins see every issue, technicians the issues assigned to them and
// department users the issues they filed. Unknown roles are denied.
func CanAccessIssue(identity domain.Identity, issue *domain.Issue) bool {
	if issue == nil {
		return false
	}
	switch identity.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleTechnician:
		return issue.AssignedTo(identity.ID)
	case domain.RoleDepartment:
		return issue.OwnerID == identity.ID
	default:
		return false
	}
}
