package errdef

import (
	"errors"
	"fmt"
)

// Code buckets an error for classification at the pipeline boundary.
type Code string

const (
	CodeParse       Code = "parse"
	CodeValidation  Code = "validation"
	CodeAuth        Code = "auth"
	CodeCredentials Code = "credentials"
	CodeTransport   Code = "transport"
	CodeHTTP        Code = "http"
	CodeFilesystem  Code = "filesystem"
	CodeUnknown     Code = "unknown"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. A nil err returns nil.
func Wrap(code Code, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf reports the code of the outermost coded error in err's chain,
// or CodeUnknown when the chain carries none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
