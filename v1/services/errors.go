package services

import (
	"errors"

	"github.com/miladnoo/Heray/v1/database"
)

// ErrorKind classifies a failed operation for the transport layer
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindStorage    ErrorKind = "storage"
	KindInternal   ErrorKind = "internal"
)

// Client-facing messages
const (
	MsgRegistered         = "Successfully registered!"
	MsgInvalidInput       = "Invalid input data"
	MsgEmailRegistered    = "Email already registered"
	MsgRegisterFailed     = "Failed to register member: "
	MsgInternalError      = "Internal server error"
	MsgFetchMembersFailed = "Unable to fetch members: "
)

// storageMessage extracts the backend's own description of a storage failure
func storageMessage(err error) string {
	var storageErr *database.StorageError
	if errors.As(err, &storageErr) && storageErr.Message != "" {
		return storageErr.Message
	}
	return err.Error()
}
