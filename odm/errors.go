package odm

import (
	"errors"
	"fmt"

	"github.com/mickamy/docmap/scope"
)

var (
	// ErrNotFound is returned when a lookup by identity finds nothing, or
	// finds only some of the requested identities.
	ErrNotFound = errors.New("odm: not found")

	// ErrUnscopedAccess is returned when caller conditions conflict with the
	// owner-implied conditions of an association.
	ErrUnscopedAccess = scope.ErrUnscopedAccess

	// ErrProjection is matched by *ProjectionError.
	ErrProjection = errors.New("odm: projection")

	// ErrPersist is matched by *PersistError.
	ErrPersist = errors.New("odm: persist")

	// ErrUnknownModel is returned when a model name is not registered.
	ErrUnknownModel = errors.New("odm: unknown model")

	// ErrUnknownAssociation is returned when an association name is not
	// declared on the document's model.
	ErrUnknownAssociation = errors.New("odm: unknown association")

	// ErrTargetMismatch is returned when a document of the wrong model is
	// added to an association.
	ErrTargetMismatch = errors.New("odm: document model does not match association target")
)

// PersistError reports a buffered document that failed to persist while an
// association was being flushed. The failed entry and everything after it
// stay buffered, so saving the owner again retries them.
type PersistError struct {
	Model       string
	Association string
	Remaining   int
	Err         error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("odm: flush %s.%s (%d pending): %v", e.Model, e.Association, e.Remaining, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool { return target == ErrPersist }

// ProjectionError reports a field that cannot be resolved while projecting
// join documents onto their targets.
type ProjectionError struct {
	Association string
	Field       string
	Reason      string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("odm: %s: field %q %s", e.Association, e.Field, e.Reason)
}

func (e *ProjectionError) Is(target error) bool { return target == ErrProjection }

// SchemaError reports an invalid model or association declaration found by
// Registry.Build.
type SchemaError struct {
	Model       string
	Association string
	Reason      string
}

func (e *SchemaError) Error() string {
	if e.Association == "" {
		return fmt.Sprintf("odm: model %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("odm: %s.%s: %s", e.Model, e.Association, e.Reason)
}
