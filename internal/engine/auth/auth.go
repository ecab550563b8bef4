package auth

import (
	"fmt"

	"pageone/internal/domain"
)

// ForbiddenRoleError indicates the acting user has the wrong account type
// for the operation.
type ForbiddenRoleError struct {
	Required string
}

func (e ForbiddenRoleError) Error() string {
	return fmt.Sprintf("%s account required", e.Required)
}

// NotOwnerError indicates the acting user does not own the entity.
type NotOwnerError struct {
	EntityKind string
	EntityID   string
}

func (e NotOwnerError) Error() string {
	return fmt.Sprintf("%s %s is not owned by the acting user", e.EntityKind, e.EntityID)
}

// NotParticipantError indicates the acting user is on neither side of a thread.
type NotParticipantError struct {
	ThreadID string
}

func (e NotParticipantError) Error() string {
	return fmt.Sprintf("user is not a participant of thread %s", e.ThreadID)
}

// RequireRole checks the account type of a user.
func RequireRole(u domain.User, role string) error {
	if u.Type != role {
		return ForbiddenRoleError{Required: role}
	}
	return nil
}

// RequireParticipant checks thread membership for either side.
func RequireParticipant(t domain.Thread, userID string) error {
	if t.ProducerID != userID && t.WriterID != userID {
		return NotParticipantError{ThreadID: t.ID}
	}
	return nil
}
