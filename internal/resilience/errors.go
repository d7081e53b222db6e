// Package resilience classifies failures so callers can decide whether a
// failure is scoped to one item or to the whole run.
package resilience

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks a failure of a single resource that a later run may
// not see again, such as a 5xx from the archives host.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as transient. statusCode is 0 when no HTTP
// response was received.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err is a TransientError or a network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	return errors.As(err, &te) || isNetworkFailure(err)
}

// IsConnectionLoss reports whether err means the connection to a database
// is gone, as opposed to a single statement being rejected.
func IsConnectionLoss(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		return true
	case isNetworkFailure(err):
		return true
	}
	return containsAny(err, connectionLossMarkers)
}

var (
	networkErrnos = []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

	// Substrings of errors that lost their typed cause while being wrapped
	// by HTTP or SQL clients.
	networkMarkers = []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"server closed idle connection",
	}

	connectionLossMarkers = []string{
		"conn closed",
		"closed pool",
		"database is closed",
		"failed to connect",
		"connection refused",
		"unexpected eof",
	}
)

func isNetworkFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range networkErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return containsAny(err, networkMarkers)
}

func containsAny(err error, markers []string) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth requesting
// again on a later run.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
