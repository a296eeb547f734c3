// Package errors contains the error taxonomy shared by the eip20 engine, its
// collaborators and the HTTP surface.
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryGeneralError The engine failed in an unexpected way
	CategoryGeneralError Category = iota
	// CategoryTransport A network or RPC call to a collaborator failed
	CategoryTransport
	// CategoryDecode A response was empty, too short or otherwise malformed
	CategoryDecode
	// CategoryNotFound No cached or stored value is available
	CategoryNotFound
	// CategoryNoSigner A signed operation was attempted without a signing key
	CategoryNoSigner
	// CategoryDataError The caller sent invalid input
	CategoryDataError
)

func (c Category) String() string {
	switch c {
	case CategoryTransport:
		return "CategoryTransport"
	case CategoryDecode:
		return "CategoryDecode"
	case CategoryNotFound:
		return "CategoryNotFound"
	case CategoryNoSigner:
		return "CategoryNoSigner"
	case CategoryDataError:
		return "CategoryDataError"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries a category, a caller-facing message and the cause.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err *ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool { return Is(err, CategoryTransport) }

// IsDecode reports whether err is a DecodeError.
func IsDecode(err error) bool { return Is(err, CategoryDecode) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return Is(err, CategoryNotFound) }

// IsNoSigner reports whether err is a NoSignerError.
func IsNoSigner(err error) bool { return Is(err, CategoryNoSigner) }

func newError(cat Category, err error, message string) error {
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// TransportError wraps a network or RPC failure.
func TransportError(err error, message string) error {
	return newError(CategoryTransport, err, message)
}

// DecodeError wraps a malformed response. err may be nil.
func DecodeError(err error, message string) error {
	return newError(CategoryDecode, err, message)
}

// NotFoundError reports a missing value. err may be nil.
func NotFoundError(err error, message string) error {
	return newError(CategoryNotFound, err, message)
}

// NoSignerError reports a signed operation on a client without a key.
func NoSignerError(message string) error {
	return newError(CategoryNoSigner, nil, message)
}

// BadRequestError reports invalid caller input.
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

// GeneralError returns a general error; the message sent to HTTP clients is
// "Internal Server Error".
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return newError(CategoryGeneralError, err, "Internal Server Error")
}

// StatusCode returns the HTTP status code for the error category
func (err *ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryTransport:
		return http.StatusBadGateway
	case CategoryDecode:
		return http.StatusBadGateway
	case CategoryNoSigner:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
