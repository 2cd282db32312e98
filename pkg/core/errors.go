// Package core holds the shared error model and small cross-cutting helpers
// for the vigil session engine.
package core

import (
	"errors"
	"fmt"
)

// Error is a structured session error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors by how the session must react to them.
type ErrorType string

const (
	// ErrInput marks a malformed or unsupported inbound unit. The unit is
	// dropped and the session continues.
	ErrInput ErrorType = "input_error"

	// ErrCollaboratorTimeout marks a collaborator call that exceeded its
	// deadline. The unit's processing is aborted; the session continues.
	ErrCollaboratorTimeout ErrorType = "collaborator_timeout"

	// ErrCollaboratorFailure marks a non-timeout collaborator failure.
	// Handled like a timeout, but never retried for non-idempotent calls.
	ErrCollaboratorFailure ErrorType = "collaborator_failure"

	// ErrInvariant marks a broken internal invariant. Fatal to the session;
	// the session is terminated with an escalation-safe shutdown.
	ErrInvariant ErrorType = "state_invariant_violation"

	// ErrEscalationDispatch marks a per-contact notification failure. Logged;
	// never blocks the remaining contacts or rolls back escalation state.
	ErrEscalationDispatch ErrorType = "escalation_dispatch_failure"
)

// Fatal reports whether err must terminate the session.
func Fatal(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Type == ErrInvariant
	}
	return false
}

// NewInputError creates an input error for a named inbound parameter.
func NewInputError(message, param string) *Error {
	return &Error{Type: ErrInput, Message: message, Param: param}
}

// NewTimeoutError creates a collaborator timeout error.
func NewTimeoutError(collaborator string, err error) *Error {
	return &Error{Type: ErrCollaboratorTimeout, Message: fmt.Sprintf("%s deadline exceeded: %v", collaborator, err), Code: collaborator}
}

// NewCollaboratorError creates a non-timeout collaborator failure.
func NewCollaboratorError(collaborator string, err error) *Error {
	return &Error{Type: ErrCollaboratorFailure, Message: fmt.Sprintf("%s failed: %v", collaborator, err), Code: collaborator}
}

// NewInvariantError creates a fatal invariant violation.
func NewInvariantError(message string) *Error {
	return &Error{Type: ErrInvariant, Message: message}
}

// NewDispatchError creates a per-contact escalation dispatch failure.
func NewDispatchError(contact string, err error) *Error {
	return &Error{Type: ErrEscalationDispatch, Message: fmt.Sprintf("notify %s: %v", contact, err), Param: contact}
}
