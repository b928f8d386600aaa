package services

// ErrorKind is the stable, machine-readable classification of a failed
// coordination action. Clients match on the kind; the message is for humans.
type ErrorKind string

const (
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindAuthorizationDenied  ErrorKind = "authorization_denied"
	KindNotFound             ErrorKind = "not_found"
	KindConflict             ErrorKind = "conflict"
	KindPreconditionRequired ErrorKind = "precondition_required"
	KindInconsistent         ErrorKind = "inconsistent"
	KindInternal             ErrorKind = "internal"
)

type ActionError struct {
	Kind    ErrorKind
	Message string
}

func (e *ActionError) Error() string {
	return e.Message
}

func errDenied(message string) *ActionError {
	return &ActionError{Kind: KindAuthorizationDenied, Message: message}
}

func errNotFound(message string) *ActionError {
	return &ActionError{Kind: KindNotFound, Message: message}
}

func errConflict(message string) *ActionError {
	return &ActionError{Kind: KindConflict, Message: message}
}

func errPrecondition(message string) *ActionError {
	return &ActionError{Kind: KindPreconditionRequired, Message: message}
}

func errInternal(message string) *ActionError {
	return &ActionError{Kind: KindInternal, Message: message}
}
