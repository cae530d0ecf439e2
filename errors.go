package services

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeNotInitialized = "COMPONENT_NOT_INITIALIZED"
	textCodeNilDependency  = "NIL_DEPENDENCY"
	textCodeTokenNotFound  = "TOKEN_NOT_FOUND"
	textCodeMachineMissing = "MACHINE_NOT_FOUND"
)

// ErrNotInitialized is returned by any mutating or query operation invoked
// before the owning component's Initialize. This is a programming error in
// the caller, not a recoverable domain condition.
var ErrNotInitialized = goerrors.New("component not initialized", goerrors.CategoryOperation).
	WithTextCode(textCodeNotInitialized).
	WithCode(goerrors.CodeConflict)

// ErrNilDependency is returned when a component is constructed or
// initialized without a required collaborator.
var ErrNilDependency = goerrors.New("required dependency is nil", goerrors.CategoryBadInput).
	WithTextCode(textCodeNilDependency).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenNotFound is returned by token lookups for unknown ids.
var ErrTokenNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrMachineNotFound is returned by registry queries for unknown machine ids.
var ErrMachineNotFound = goerrors.New("machine not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeMachineMissing).
	WithCode(goerrors.CodeNotFound)

// Soft-fail result messages. Domain-level failures are reported through
// result values carrying these strings, never through raised errors.
const (
	resultInvalidCredentials = "Invalid credentials"
	resultInvalidTransition  = "Invalid transition"
	resultMachineNotFound    = "Machine not found"
)
