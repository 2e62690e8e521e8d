package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseAcquire  Phase = "acquire"  // engine resolution and instantiation
	PhaseProbe    Phase = "probe"    // capability detection
	PhaseAllocate Phase = "allocate" // guest buffer allocation
	PhasePlan     Phase = "plan"     // plan configuration lifecycle
	PhaseCompute  Phase = "compute"  // forward/inverse execution
	PhaseValidate Phase = "validate" // argument validation
	PhaseCleanup  Phase = "cleanup"  // dispose and bulk cleanup
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindAllocation        Kind = "allocation"
	KindPlanAllocation    Kind = "plan_allocation"
	KindEngineUnavailable Kind = "engine_unavailable"
	KindAssetNotFound     Kind = "asset_not_found"
	KindUseAfterDispose   Kind = "use_after_dispose"
	KindTrap              Kind = "trap"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidArgument creates an argument validation error
func InvalidArgument(op, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidArgument,
		Op:     op,
		Detail: detail,
	}
}

// WrongLength creates an invalid argument error for a buffer of the wrong size
func WrongLength(op string, expected, actual int) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindInvalidArgument,
		Op:     op,
		Detail: fmt.Sprintf("wrong length: expected %d, got %d", expected, actual),
		Value:  actual,
	}
}

// AllocationFailed creates an allocation failure error listing which labels
// failed and which had succeeded before being rolled back
func AllocationFailed(op string, failed, succeeded []string, value any) *Error {
	detail := "failed: " + strings.Join(failed, ", ")
	if len(succeeded) > 0 {
		detail += "; rolled back: " + strings.Join(succeeded, ", ")
	}
	return &Error{
		Phase:  PhaseAllocate,
		Kind:   KindAllocation,
		Op:     op,
		Detail: detail,
		Value:  value,
	}
}

// PlanAllocationFailed creates a plan configuration failure error
func PlanAllocationFailed(key, which string, cause error) *Error {
	return &Error{
		Phase:  PhasePlan,
		Kind:   KindPlanAllocation,
		Op:     key,
		Detail: fmt.Sprintf("engine returned no %s plan", which),
		Cause:  cause,
	}
}

// EngineUnavailable creates an acquisition failure error
func EngineUnavailable(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseAcquire,
		Kind:   KindEngineUnavailable,
		Detail: detail,
		Cause:  cause,
	}
}

// AssetNotFound creates a missing engine binary error with a remediation hint
func AssetNotFound(where, hint string, cause error) *Error {
	detail := fmt.Sprintf("engine binary not found at %s", where)
	if hint != "" {
		detail += ". " + hint
	}
	return &Error{
		Phase:  PhaseAcquire,
		Kind:   KindAssetNotFound,
		Detail: detail,
		Value:  where,
		Cause:  cause,
	}
}

// UseAfterDispose creates an error for an operation on a disposed session
func UseAfterDispose(op, detail string) *Error {
	return &Error{
		Phase:  PhaseCompute,
		Kind:   KindUseAfterDispose,
		Op:     op,
		Detail: detail,
	}
}

// Trap wraps a failure raised by a guest call
func Trap(phase Phase, export string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Op:     export,
		Detail: "guest call failed",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
