package main

import "github.com/RunningKuma/matrix-on-vscode/errors"

var (
	errIncompleteCreds = errors.New("main: both --username and --password are required")
	errNoLoginMethod   = errors.New("main: pass --cookie or --username")
	errNoSession       = errors.New("main: login succeeded but Matrix set no session cookie")
	errBadID           = errors.NewError("main", "ids must be integers", errors.ErrBadCommandUsage)
)
