package server

import (
	"net/http"

	"github.com/RunningKuma/matrix-on-vscode/errors"
	"github.com/RunningKuma/matrix-on-vscode/site"
)

var (
	errBadCourseID     = errors.NewError("server", "invalid course id", nil)
	errBadAssignmentID = errors.NewError("server", "invalid assignment id", nil)
	errNodeNotFound    = errors.NewError("server", site.ErrNotFound.Error(), nil)
)

// statusFor maps an error to the HTTP status returned to clients.
func statusFor(err error) int {
	var herr *site.HTTPError
	switch {
	case errors.Is(err, site.ErrNotSignedIn):
		return http.StatusUnauthorized
	case errors.As(err, &herr):
		return http.StatusBadGateway
	case errors.Is(err, errBadCourseID), errors.Is(err, errBadAssignmentID):
		return http.StatusBadRequest
	case errors.Is(err, errNodeNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
