// Package errors provides severity-aware error types for the planner.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON and YAML output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	case "fatal":
		*s = SeverityFatal
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// PlannerError is a structured error with context.
type PlannerError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Subject     string   `json:"subject,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *PlannerError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %s (subject: %s)", e.Severity, e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *PlannerError) Unwrap() error {
	return e.Err
}

// Is matches any PlannerError carrying the same code, so the Err* sentinels
// below work with errors.Is.
func (e *PlannerError) Is(target error) bool {
	t, ok := target.(*PlannerError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeAmbiguousRecipe      = "AMBIGUOUS_RECIPE"
	ErrCodeUnassignableBuilding = "UNASSIGNABLE_BUILDING"
	ErrCodeNonTerminating       = "NON_TERMINATING_RESOLUTION"
	ErrCodeInvalidCatalogEntry  = "INVALID_CATALOG_ENTRY"
	ErrCodeCyclicRecipe         = "CYCLIC_RECIPE"
	ErrCodeUnknownUnit          = "UNKNOWN_UNIT"
	ErrCodeUnknownItem          = "UNKNOWN_ITEM"
	ErrCodeInvalidTime          = "INVALID_TIME"
	ErrCodeInvalidRate          = "INVALID_RATE"
)

// Sentinels for errors.Is.
var (
	ErrAmbiguousRecipe      = &PlannerError{Code: ErrCodeAmbiguousRecipe}
	ErrUnassignableBuilding = &PlannerError{Code: ErrCodeUnassignableBuilding}
	ErrNonTerminating       = &PlannerError{Code: ErrCodeNonTerminating}
	ErrInvalidCatalogEntry  = &PlannerError{Code: ErrCodeInvalidCatalogEntry}
	ErrCyclicRecipe         = &PlannerError{Code: ErrCodeCyclicRecipe}
	ErrUnknownUnit          = &PlannerError{Code: ErrCodeUnknownUnit}
	ErrUnknownItem          = &PlannerError{Code: ErrCodeUnknownItem}
	ErrInvalidTime          = &PlannerError{Code: ErrCodeInvalidTime}
	ErrInvalidRate          = &PlannerError{Code: ErrCodeInvalidRate}
)

// NewAmbiguousRecipeError reports an item produced by several recipes.
// The severity depends on whether the caller keeps resolving.
func NewAmbiguousRecipeError(item string, recipes []string, severity Severity) *PlannerError {
	return &PlannerError{
		Code:        ErrCodeAmbiguousRecipe,
		Message:     fmt.Sprintf("%d recipes produce this item: %s", len(recipes), strings.Join(recipes, ", ")),
		Severity:    severity,
		Subject:     item,
		Recoverable: severity < SeverityError,
	}
}

// NewUnassignableBuildingError creates an error for a recipe with no allowed building.
func NewUnassignableBuildingError(recipe, buildingType string) *PlannerError {
	return &PlannerError{
		Code:        ErrCodeUnassignableBuilding,
		Message:     fmt.Sprintf("no allowed building of type %q", buildingType),
		Severity:    SeverityError,
		Subject:     recipe,
		Recoverable: false,
	}
}

// NewNonTerminatingError creates an error for a resolution that hit the iteration cap.
func NewNonTerminatingError(iterations int, cause error) *PlannerError {
	return &PlannerError{
		Code:        ErrCodeNonTerminating,
		Message:     fmt.Sprintf("requirements still changing after %d iterations", iterations),
		Severity:    SeverityError,
		Recoverable: false,
		Err:         cause,
	}
}

// NewInvalidCatalogEntryError creates an error for a malformed catalog definition.
func NewInvalidCatalogEntryError(kind, id, reason string) *PlannerError {
	return &PlannerError{
		Code:        ErrCodeInvalidCatalogEntry,
		Message:     fmt.Sprintf("%s: %s", kind, reason),
		Severity:    SeverityFatal,
		Subject:     id,
		Recoverable: false,
	}
}

// NewCyclicRecipeError creates an error for an item that requires itself.
func NewCyclicRecipeError(item string, chain []string) *PlannerError {
	return &PlannerError{
		Code:        ErrCodeCyclicRecipe,
		Message:     fmt.Sprintf("recipe cycle: %s", strings.Join(chain, " -> ")),
		Severity:    SeverityError,
		Subject:     item,
		Recoverable: false,
	}
}

// NewUnknownUnitError creates an error for an unsupported time unit.
func NewUnknownUnitError(unit string) *PlannerError {
	return &PlannerError{
		Code:     ErrCodeUnknownUnit,
		Message:  "unknown time unit",
		Severity: SeverityError,
		Subject:  unit,
	}
}

// NewUnknownItemError creates an error for an item missing from the catalog.
func NewUnknownItemError(item string) *PlannerError {
	return &PlannerError{
		Code:     ErrCodeUnknownItem,
		Message:  "item not in catalog",
		Severity: SeverityError,
		Subject:  item,
	}
}

// NewInvalidTimeError creates an error for an unusable time value.
func NewInvalidTimeError(value, reason string) *PlannerError {
	return &PlannerError{
		Code:     ErrCodeInvalidTime,
		Message:  reason,
		Severity: SeverityError,
		Subject:  value,
	}
}

// NewInvalidRateError creates an error for an unusable rate.
func NewInvalidRateError(value, reason string) *PlannerError {
	return &PlannerError{
		Code:     ErrCodeInvalidRate,
		Message:  reason,
		Severity: SeverityError,
		Subject:  value,
	}
}

// CodeOf returns the code of the first PlannerError in err's chain, or "".
func CodeOf(err error) string {
	var pe *PlannerError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
