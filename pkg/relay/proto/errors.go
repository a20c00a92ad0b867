package proto

import "fmt"

type ErrorReason string

const ErrReasonInvalidSession ErrorReason = "ERR_INVALID_SESSION"
const ErrReasonSessionExpired ErrorReason = "ERR_SESSION_EXPIRED"
const ErrReasonInvalidToken ErrorReason = "ERR_INVALID_TOKEN"
const ErrReasonTokenMismatch ErrorReason = "ERR_TOKEN_MISMATCH"
const ErrReasonInvalidRole ErrorReason = "ERR_INVALID_ROLE"
const ErrReasonAuthRequired ErrorReason = "ERR_AUTH_REQUIRED"
const ErrReasonAlreadyAuthed ErrorReason = "ERR_ALREADY_AUTHENTICATED"
const ErrReasonDeviceUnavailable ErrorReason = "ERR_DEVICE_UNAVAILABLE"

func (e ErrorReason) String() string {
	return string(e)
}

// AuthError is returned whenever an authentication attempt is rejected.
// The connection stays open; the client may retry with another auth
// frame.
type AuthError struct {
	Reason  ErrorReason
	Message string
}

func NewAuthError(reason ErrorReason, message string) error {
	return &AuthError{
		Reason:  reason,
		Message: message,
	}
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: reason: %s", e.Reason)
}

func IsAuthError(e error) bool {
	_, ok := e.(*AuthError)
	return ok
}

// SessionExpiredError is fatal for the connection that triggered it:
// the connection is closed after the error reply is sent.
type SessionExpiredError struct {
	SessionID string
}

func NewSessionExpiredError(sessionID string) error {
	return &SessionExpiredError{SessionID: sessionID}
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session '%s' is expired", e.SessionID)
}

func IsSessionExpiredError(e error) bool {
	_, ok := e.(*SessionExpiredError)
	return ok
}
