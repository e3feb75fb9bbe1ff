package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInitFailed = errors.New("initialization failed")

	// User errors

	ErrBadCommandUsage = errors.New("invalid invocation, see --help for usage")
)

// Custom error wrapper
type ErrorWrapper struct {
	Origin string
	Text   string
	Err    error
}

// When ErrorWrapper is treated as an error type, this is used.
func (err ErrorWrapper) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("%v: %v", err.Origin, err.Text)
	}

	return fmt.Sprintf("%v: %v: %v", err.Origin, err.Text, err.Err)
}

// Unwrap exposes the wrapped error to Is and As.
func (err ErrorWrapper) Unwrap() error {
	return err.Err
}

// NewError returns an ErrorWrapper which contains information on which package and/or function
// the error originated, the error text/message, and the error itself
func NewError(origin string, text string, err error) ErrorWrapper {
	return ErrorWrapper{
		Origin: origin,
		Text:   text,
		Err:    err,
	}
}

//
// Reimplement errors module, so only this module needs to be imported to manage errors

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

func New(text string) error {
	return errors.New(text)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}
