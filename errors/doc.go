// Package errors provides structured error types for the kissfft library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Kinds mirror the failure taxonomy of the library: invalid
// arguments, guest allocation failures, plan allocation failures, engine
// acquisition failures, missing engine assets, use of disposed sessions and
// guest traps.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCompute, errors.KindUseAfterDispose).
//		Op("nd forward").
//		Detail("session %s disposed", id).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.WrongLength("forward", 32, 30)
//	err := errors.AllocationFailed("session", []string{"out"}, []string{"in"}, nil)
//
// All errors implement the standard error interface and support errors.Is/As.
// A target with an empty Phase matches any phase:
//
//	errors.Is(err, &errors.Error{Kind: errors.KindInvalidArgument})
package errors
