package storage

type storageError string

const ErrNotFound = storageError("not found")
const ErrSessionClosed = storageError("session closed")

func (e storageError) Error() string {
	return string(e)
}
