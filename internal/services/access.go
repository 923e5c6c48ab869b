package services

import (
	"github.com/ispops/backend/internal/models"
)

// User callers are reporters: the token subject is the reporter mirror id.

// checkCanView admits admins, the system, the reporter and the bound engineer.
func checkCanView(c *models.Complaint, actor Actor) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RoleEngineer:
		if actor.ID != nil && c.HasEngineer() && *c.EngineerID == *actor.ID {
			return nil
		}
	case RoleUser:
		if actor.ID != nil && c.ReporterID == *actor.ID {
			return nil
		}
	}
	return ErrForbidden
}

// scopeFilter narrows a listing to what the caller may see, overriding any
// reporter or engineer filter they supplied.
func scopeFilter(filter *models.ComplaintFilter, actor Actor) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RoleEngineer:
		if actor.ID != nil {
			id := *actor.ID
			filter.EngineerID = &id
			return nil
		}
	case RoleUser:
		if actor.ID != nil {
			id := *actor.ID
			filter.ReporterID = &id
			filter.IncludeRemoved = false
			return nil
		}
	}
	return ErrForbidden
}
