package authority

import "fmt"

type VerifyError struct {
	Message string
}

func NewVerifyError(message string) error {
	return &VerifyError{
		Message: message,
	}
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("token verification failed: %s", e.Message)
}

func IsVerifyError(e error) bool {
	_, ok := e.(*VerifyError)
	return ok
}
