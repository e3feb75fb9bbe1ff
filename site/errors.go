package site

import (
	"fmt"

	"github.com/RunningKuma/matrix-on-vscode/errors"
)

var (
	ErrNotFound = errors.New("cannot find resource")

	// ErrNotSignedIn is returned before any request is made when the session
	// store holds no cookie.
	ErrNotSignedIn = errors.New("当前未登录 Matrix")
)

// NotSignedIn wraps ErrNotSignedIn with a user-facing message specific to
// the attempted operation.
type NotSignedIn struct {
	Message string
}

func (e NotSignedIn) Error() string {
	return e.Message
}

func (e NotSignedIn) Is(target error) bool {
	return target == ErrNotSignedIn
}

// HTTPError is returned when the remote API answers with a non-2xx status.
// Its message is the response body, or a synthesized one when the body is
// empty.
type HTTPError struct {
	Status  int
	Message string
}

// NewHTTPError builds an HTTPError from a status code and response body.
func NewHTTPError(status int, body string) *HTTPError {
	msg := body
	if msg == "" {
		msg = fmt.Sprintf("请求失败：%d", status)
	}
	return &HTTPError{Status: status, Message: msg}
}

func (e *HTTPError) Error() string {
	return e.Message
}
