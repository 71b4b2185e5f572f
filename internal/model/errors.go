package model

import "errors"

// Error kinds surfaced by the allocation core. Operations wrap these with
// context, so callers should match with errors.Is.
var (
	// ErrUnitUnavailable: the target unit is not vacant. The caller should
	// choose another unit.
	ErrUnitUnavailable = errors.New("unit unavailable")

	// ErrInvalidTransition: the entity is not in the state the operation
	// expects. The caller should refresh its view.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict: a concurrent writer changed the row between read and write.
	// Retrying against freshly read state is safe.
	ErrConflict = errors.New("conflict")

	// ErrCrossProperty: the units involved belong to different properties.
	ErrCrossProperty = errors.New("cross property")

	// ErrAlreadyEnded: the tenancy is no longer active.
	ErrAlreadyEnded = errors.New("tenancy already ended")

	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrInvalidInput = errors.New("invalid input")
)

// Kind returns a short stable name for the error's kind, used for metric
// labels and transport error codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnitUnavailable):
		return "unit_unavailable"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCrossProperty):
		return "cross_property"
	case errors.Is(err, ErrAlreadyEnded):
		return "already_ended"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "error"
}
