package db

import "errors"

// ConnectivityError reports a failure to open a session: authentication,
// network, timeout or a missing database. Error returns the driver message.
type ConnectivityError struct {
	Target string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return e.Err.Error()
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// QueryError reports a malformed statement or a runtime database error.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is or wraps a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsQuery reports whether err is or wraps a QueryError.
func IsQuery(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
