package shared

import "errors"

type Error string

// Implement the error interface
func (e Error) Error() string { return string(e) }

//------------
// Definitions
//------------

// storage errors
const (
	// ErrStorageUnavailable: the database file is locked, missing or not writable.
	// Retryable by the caller after a delay.
	ErrStorageUnavailable = Error("storage unavailable")
	// ErrSchemaConflict: the live schema cannot be brought to the desired state.
	// Needs an operator.
	ErrSchemaConflict = Error("schema conflict")
)

// user errors
const (
	ErrDuplicateUsername  = Error("username already exists")
	ErrWeakCredential     = Error("password does not meet the strength policy")
	ErrUserNotFound       = Error("user not found")
	ErrInvalidCredentials = Error("invalid username or password")
	ErrTooManyAttempts    = Error("too many failed login attempts")
	ErrLastAdmin          = Error("cannot remove the last admin")
	ErrAdminUsernameTaken = Error("default admin username is held by a non-admin account")
	ErrInvalidName        = Error("invalid name")
	ErrInvalidRole        = Error("invalid role")
	ErrInvalidToken       = Error("invalid session token")
)

// settings errors
const (
	ErrSettingNotFound = Error("setting not found")
)

// cli errors
const (
	ErrorCreateFile = Error("could not create the file")
	ErrorEncodeFile = Error("could not encode to file")
)

var userMessages = []struct {
	err Error
	msg string
}{
	{ErrStorageUnavailable, "The database is busy or cannot be opened. Please try again in a moment."},
	{ErrSchemaConflict, "The database structure could not be upgraded. Please contact an administrator."},
	{ErrDuplicateUsername, "That username is already taken."},
	{ErrWeakCredential, "The password is too weak."},
	{ErrUserNotFound, "No such user."},
	{ErrInvalidCredentials, "Invalid username or password."},
	{ErrTooManyAttempts, "Too many failed attempts. Please wait before trying again."},
	{ErrLastAdmin, "The last administrator cannot be removed or demoted."},
	{ErrAdminUsernameTaken, "The default administrator name is in use by a regular account and no administrator exists. Grant the admin role with 'lostfound user role <username> admin'."},
	{ErrInvalidName, "The name contains invalid characters."},
	{ErrInvalidRole, "Role must be 'admin' or 'user'."},
	{ErrInvalidToken, "The session token is invalid or has expired. Please log in again."},
	{ErrSettingNotFound, "No such setting."},
}

// UserMessage turns a classified error into text safe to show an end user.
// Unclassified errors get a generic message; the raw error belongs in the log.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			if m.err == ErrWeakCredential {
				// the reason is produced by the password policy, never by the driver
				return err.Error()
			}
			return m.msg
		}
	}
	return "An unexpected error occurred."
}
