package domain

import "slices"

// Role constants define the closed set of platform roles.
const (
	RoleLearner    = "learner"
	RoleTrainer    = "trainer"
	RoleOperations = "operations"
)

// ValidRoles returns the set of valid roles.
func ValidRoles() []string {
	return []string{RoleLearner, RoleTrainer, RoleOperations}
}

// IsValidRole checks whether role is one of ValidRoles.
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles(), role)
}

// StaffRoles may look up other identities.
func StaffRoles() []string {
	return []string{RoleTrainer, RoleOperations}
}
