// Package pgclient implements spec.md §4.5: startup/authentication,
// simple and extended query execution, and a prepared-statement cache,
// layered over internal/pgconn, internal/protocol, internal/scram, and
// internal/pgtype. It is the Go analog of the teacher's
// internal/proxy/postgres.go PostgresHandler, generalized from "relay
// bytes between a real client and a real backend" to "be the client
// speaking directly to a backend".
package pgclient

import (
	"fmt"

	"github.com/elefantsql/elefant/internal/protocol"
)

// ServerError wraps a backend ErrorResponse, surfacing the SQLSTATE code
// and every field the server sent, per spec.md §4.5's failure model.
type ServerError struct {
	Fields []protocol.ErrorField
}

func newServerError(fields []protocol.ErrorField) *ServerError {
	return &ServerError{Fields: fields}
}

// Code returns the SQLSTATE code ('C' field), or "" if the server didn't
// send one.
func (e *ServerError) Code() string { return e.field('C') }

// Message returns the primary human-readable message ('M' field).
func (e *ServerError) Message() string { return e.field('M') }

func (e *ServerError) field(typ byte) string {
	for _, f := range e.Fields {
		if f.Type == typ {
			return f.Value
		}
	}
	return ""
}

func (e *ServerError) Error() string {
	if code := e.Code(); code != "" {
		return fmt.Sprintf("pgclient: server error %s: %s", code, e.Message())
	}
	return fmt.Sprintf("pgclient: server error: %s", e.Message())
}

// UnexpectedMessageError means the backend sent a message type that
// doesn't belong in the current phase of the protocol — spec.md §4.5's
// "Any other -> UnexpectedBackendMessage".
type UnexpectedMessageError struct {
	Phase string
	Got   protocol.BackendMessage
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("pgclient: unexpected backend message during %s: %T", e.Phase, e.Got)
}
