package rpc

import (
	"encoding/json"

	"church-portal-be/internal/identity"
)

// Conn is the dispatcher's view of one client connection.
type Conn interface {
	ID() string
	Identity() *identity.Identity
	SetIdentity(id *identity.Identity)
	Join(group string)
	Leave(group string)
}

// Call carries per-request context into a handler.
type Call struct {
	Conn      Conn
	Identity  *identity.Identity
	RequestID string
	Action    string
	Meta      json.RawMessage
}
