// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure raised while handling a single inbound trigger.
type Kind string

const (
	KindAuth          Kind = "auth_failure"
	KindNotFound      Kind = "not_found"
	KindIllegalAction Kind = "illegal_action"
	KindCollaborator  Kind = "collaborator_failure"
	KindConflict      Kind = "conflict"
)

// Error is returned by the session layer. Message is safe to show to the client;
// Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apperrors.ErrNotYourTurn).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Predefined errors.
var (
	ErrInvalidToken   = &Error{Kind: KindAuth, Message: "Invalid token"}
	ErrMatchNotFound  = &Error{Kind: KindNotFound, Message: "Game not found"}
	ErrPlayerNotFound = &Error{Kind: KindNotFound, Message: "Player not found"}
	ErrTargetNotFound = &Error{Kind: KindNotFound, Message: "Target not found"}
	ErrNotInMatch     = &Error{Kind: KindIllegalAction, Message: "Not in this game"}
	ErrNotYourTurn    = &Error{Kind: KindIllegalAction, Message: "Not your turn"}
	ErrNotInGameplay  = &Error{Kind: KindIllegalAction, Message: "Match is not in progress"}
	ErrUnknownAction  = &Error{Kind: KindIllegalAction, Message: "Unknown action"}
	ErrInvalidMode    = &Error{Kind: KindIllegalAction, Message: "Invalid mode"}
	ErrTargetBusy     = &Error{Kind: KindIllegalAction, Message: "Target already in match"}
	ErrTargetOffline  = &Error{Kind: KindIllegalAction, Message: "Target not online"}
	ErrSelfChallenge  = &Error{Kind: KindIllegalAction, Message: "Cannot challenge yourself"}
	ErrAlreadyInMatch = &Error{Kind: KindIllegalAction, Message: "Already in a match"}

	ErrInvalidCredentials = &Error{Kind: KindAuth, Message: "Invalid credentials"}
	ErrUsernameTaken      = &Error{Kind: KindConflict, Message: "Username already exists"}
)

// Collaborator wraps a store or persistence failure with a client-safe message.
func Collaborator(message string, err error) *Error {
	return &Error{Kind: KindCollaborator, Message: message, Err: err}
}

// ClientMessage returns the message to report to the originator of a trigger.
// Anything that is not an *Error collapses to the fallback.
func ClientMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}

// KindOf reports the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
