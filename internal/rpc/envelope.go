// Package rpc implements the multiplexed request/response protocol spoken over a realtime
// connection: envelope parsing, a typed action registry and the dispatcher.
package rpc

import (
	"encoding/json"

	"church-portal-be/internal/pkg/apperror"
)

// InvalidID is echoed when the client-supplied id cannot be read.
const InvalidID = "invalid"

// Request is the client→server envelope.
type Request struct {
	ID      string          `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// ErrorBody is the error half of a Response.
type ErrorBody struct {
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
	Details interface{}   `json:"details,omitempty"`
}

// Response is either {id, ok:true, data} or {id, ok:false, error}.
type Response struct {
	ID    string      `json:"id"`
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorBody  `json:"error,omitempty"`
}

func Ok(id string, data interface{}) Response {
	return Response{ID: id, OK: true, Data: data}
}

func Fail(id string, err error) Response {
	appErr := apperror.From(err)
	return Response{
		ID: id,
		Error: &ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	}
}

// ParseRequest decodes one frame. On failure it still returns the best id it could read so
// the error can be correlated.
func ParseRequest(raw []byte) (Request, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Request{}, InvalidID, apperror.Validation("Malformed envelope")
	}

	var id string
	if rawID, ok := fields["id"]; !ok || json.Unmarshal(rawID, &id) != nil || id == "" {
		return Request{}, InvalidID, apperror.Validation("Envelope id must be a non-empty string")
	}

	var action string
	if rawAction, ok := fields["action"]; !ok || json.Unmarshal(rawAction, &action) != nil || action == "" {
		return Request{}, id, apperror.Validation("Envelope action must be a non-empty string")
	}

	return Request{
		ID:      id,
		Action:  action,
		Payload: fields["payload"],
		Meta:    fields["meta"],
	}, id, nil
}
