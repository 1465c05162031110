package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrCategoryNotFound is returned by a Repository when no settings exist for a category.
	ErrCategoryNotFound = errors.New("settings category not found")

	// ErrRepositoryNil is returned when a store is used without a repository.
	ErrRepositoryNil = errors.New("settings repository is nil")
)

// StructuralConflictError is returned by Expand if two flattened paths collide,
// e.g. "a" and "a.b" are both present.
type StructuralConflictError struct {
	Path     string
	Conflict string
}

func (e *StructuralConflictError) Error() string {
	return fmt.Sprintf("settings path %q conflicts with %q", e.Path, e.Conflict)
}

// InvalidKeyError is returned if a settings key is empty or contains the Separator.
type InvalidKeyError struct {
	Path string
	Key  string
}

func (e *InvalidKeyError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid settings key %q", e.Key)
	}

	return fmt.Sprintf("invalid settings key %q below %q", e.Key, e.Path)
}

// BackendError wraps any failure of the storage layer.
type BackendError struct {
	Op       string
	Category string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("settings %s %q: %v", e.Op, e.Category, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ValidationError is returned if a record fails validation before it is persisted.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

var validate = validator.New()

// Validate validates a struct with its validate tags and converts failures into a ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, len(validationErrors))
	for i, ve := range validationErrors {
		messages[i] = "Field '" + ve.Field() + "' failed validation tag '" + ve.Tag() + "'"
	}

	return &ValidationError{Messages: messages}
}

// IsBackendError reports whether err was caused by the storage layer.
func IsBackendError(err error) bool {
	var be *BackendError

	return errors.As(err, &be)
}
