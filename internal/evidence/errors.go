package evidence

import "errors"

var (
	// ErrNotFound indicates the collaborator has no record for the lookup.
	ErrNotFound = errors.New("evidence not found")
	// ErrUnavailable indicates a transient collaborator failure.
	ErrUnavailable = errors.New("evidence unavailable")
	// ErrSchemaViolation indicates a lookup or collaborator payload failed schema validation.
	ErrSchemaViolation = errors.New("evidence schema violation")
)
