package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// variables that are pointers to the Error structure so callers can compare
// them by identity.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Wrap returns a new Error for module whose message combines msg with the
// text of the supplied error.
func Wrap(module, msg string, err error) *Error {
	if err == nil {
		return &Error{Module: module, Message: msg}
	}

	return &Error{Module: module, Message: msg + ": " + err.Error()}
}
