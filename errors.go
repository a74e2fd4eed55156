package keel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeServiceNotRegistered indicates no eligible registration exists for a mandatory request
	CodeServiceNotRegistered = "SERVICE_NOT_REGISTERED"

	// CodeCircularDependency indicates a cycle in the activation stack
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeNoMatchingScope indicates a per-matching-scope service was requested outside a tagged scope
	CodeNoMatchingScope = "NO_MATCHING_SCOPE"

	// CodeParameterBinding indicates a constructor or factory parameter could not be satisfied
	CodeParameterBinding = "PARAMETER_BINDING"

	// CodeContainerFrozen indicates a registration was attempted after Build
	CodeContainerFrozen = "CONTAINER_FROZEN"

	// CodeScopeDisposed indicates an operation on a disposed lifetime scope
	CodeScopeDisposed = "SCOPE_DISPOSED"

	// CodeActivationFailed indicates an activator or activation hook returned an error
	CodeActivationFailed = "ACTIVATION_FAILED"

	// CodeTypeMismatch indicates a resolved instance is not of the requested Go type
	CodeTypeMismatch = "TYPE_MISMATCH"

	// CodeInvalidRegistration indicates a malformed registration at configuration time
	CodeInvalidRegistration = "INVALID_REGISTRATION"

	// CodeDisposalFailed indicates one or more owned instances failed to dispose
	CodeDisposalFailed = "DISPOSAL_FAILED"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

// ErrServiceNotRegisteredSentinel is a sentinel for errors.Is checks.
var ErrServiceNotRegisteredSentinel = errs.NewError(CodeServiceNotRegistered, "service not registered", nil)

// ErrCircularDependencySentinel is a sentinel for errors.Is checks.
var ErrCircularDependencySentinel = errs.NewError(CodeCircularDependency, "circular dependency", nil)

// ErrNoMatchingScopeSentinel is a sentinel for errors.Is checks.
var ErrNoMatchingScopeSentinel = errs.NewError(CodeNoMatchingScope, "no matching scope", nil)

// ErrParameterBindingSentinel is a sentinel for errors.Is checks.
var ErrParameterBindingSentinel = errs.NewError(CodeParameterBinding, "parameter binding failed", nil)

// ErrContainerFrozen is returned when registrations are added after Build.
var ErrContainerFrozen = errs.NewError(CodeContainerFrozen, "container is frozen: registrations cannot be added after build", nil)

// ErrScopeDisposed is returned when a disposed scope is used.
var ErrScopeDisposed = errs.NewError(CodeScopeDisposed, "lifetime scope has been disposed", nil)

// ErrActivationFailedSentinel is a sentinel for errors.Is checks.
var ErrActivationFailedSentinel = errs.NewError(CodeActivationFailed, "activation failed", nil)

// ErrTypeMismatchSentinel is a sentinel for errors.Is checks.
var ErrTypeMismatchSentinel = errs.NewError(CodeTypeMismatch, "type mismatch", nil)

// ErrInvalidRegistrationSentinel is a sentinel for errors.Is checks.
var ErrInvalidRegistrationSentinel = errs.NewError(CodeInvalidRegistration, "invalid registration", nil)

// ErrDisposalFailedSentinel is a sentinel for errors.Is checks.
var ErrDisposalFailedSentinel = errs.NewError(CodeDisposalFailed, "disposal failed", nil)

// =============================================================================
// ERROR CONSTRUCTORS
// =============================================================================

// ErrServiceNotRegistered creates an error for a service with no eligible registration.
func ErrServiceNotRegistered(svc Service) *errs.Error {
	return errs.NewError(
		CodeServiceNotRegistered,
		fmt.Sprintf("service '%s' has not been registered", svc),
		nil,
	).WithContext("service", svc.String()).(*errs.Error)
}

// ErrCircularDependency creates an error describing the activation path that loops.
func ErrCircularDependency(path []Service) *errs.Error {
	names := make([]string, len(path))
	for i, svc := range path {
		names[i] = svc.String()
	}

	return errs.NewError(
		CodeCircularDependency,
		"circular dependency detected: "+strings.Join(names, " -> "),
		nil,
	).WithContext("path", names).(*errs.Error)
}

// ErrNoMatchingScope creates an error for a per-matching-scope registration
// resolved outside any scope carrying one of its tags.
func ErrNoMatchingScope(svc Service, tags []any) *errs.Error {
	return errs.NewError(
		CodeNoMatchingScope,
		fmt.Sprintf("no scope tagged %v is visible from the scope in which '%s' was requested", tags, svc),
		nil,
	).WithContext("service", svc.String()).
		WithContext("tags", fmt.Sprint(tags)).(*errs.Error)
}

// ErrParameterBinding creates an error for a parameter that could not be bound.
func ErrParameterBinding(svc Service, param ParameterInfo, cause error) *errs.Error {
	return errs.NewError(
		CodeParameterBinding,
		fmt.Sprintf("cannot bind parameter %s of '%s'", param, svc),
		cause,
	).WithContext("service", svc.String()).
		WithContext("parameter", param.String()).(*errs.Error)
}

// ErrActivationFailed wraps an error returned by an activator or activation hook.
func ErrActivationFailed(svc Service, stage string, cause error) *errs.Error {
	return errs.NewError(
		CodeActivationFailed,
		fmt.Sprintf("service '%s' error during %s", svc, stage),
		cause,
	).WithContext("service", svc.String()).
		WithContext("stage", stage).(*errs.Error)
}

// ErrTypeMismatch creates an error for an instance of the wrong Go type.
func ErrTypeMismatch(svc Service, actual any) *errs.Error {
	return errs.NewError(
		CodeTypeMismatch,
		fmt.Sprintf("service '%s' type mismatch: got %T", svc, actual),
		nil,
	).WithContext("service", svc.String()).
		WithContext("actual_type", fmt.Sprintf("%T", actual)).(*errs.Error)
}

// ErrInvalidRegistration creates an error for a malformed registration.
func ErrInvalidRegistration(what string, cause error) *errs.Error {
	return errs.NewError(
		CodeInvalidRegistration,
		"invalid registration: "+what,
		cause,
	).WithContext("registration", what).(*errs.Error)
}

// ErrDisposalFailed wraps the combined disposal errors of a scope.
func ErrDisposalFailed(tag any, cause error) *errs.Error {
	return errs.NewError(
		CodeDisposalFailed,
		fmt.Sprintf("scope '%v' cleanup errors", tag),
		cause,
	).WithContext("scope", fmt.Sprint(tag)).(*errs.Error)
}

// hasCode reports whether err already carries a keel error code, so activators
// can pass container errors through without wrapping them twice.
func hasCode(err error) bool {
	var keelErr *errs.Error
	return errors.As(err, &keelErr)
}
