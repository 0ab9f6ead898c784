package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"church-portal-be/internal/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

// HandlerFunc handles one action with a typed request and response.
type HandlerFunc[Req any, Res any] func(ctx context.Context, call *Call, req Req) (Res, error)

type descriptor struct {
	action string
	auth   AuthRequirement
	invoke func(ctx context.Context, call *Call, payload json.RawMessage) (interface{}, error)
}

// Registry maps action names to handler descriptors. It is filled at startup and read-only
// afterwards.
type Registry struct {
	handlers map[string]*descriptor
	validate *validator.Validate
}

func NewRegistry() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Registry{
		handlers: make(map[string]*descriptor),
		validate: v,
	}
}

// Register binds action to fn. Registering the same action twice panics.
func Register[Req any, Res any](r *Registry, action string, auth AuthRequirement, fn HandlerFunc[Req, Res]) {
	if _, dup := r.handlers[action]; dup {
		panic(fmt.Sprintf("rpc: action %q registered twice", action))
	}
	r.handlers[action] = &descriptor{
		action: action,
		auth:   auth,
		invoke: func(ctx context.Context, call *Call, payload json.RawMessage) (interface{}, error) {
			var req Req
			if err := r.decode(payload, &req); err != nil {
				return nil, err
			}
			return fn(ctx, call, req)
		},
	}
}

// Actions lists registered action names.
func (r *Registry) Actions() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

func (r *Registry) lookup(action string) (*descriptor, bool) {
	d, ok := r.handlers[action]
	return d, ok
}

func (r *Registry) decode(payload json.RawMessage, target interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, target); err != nil {
			return apperror.Validation("Invalid payload").WithDetails(map[string]string{"reason": err.Error()})
		}
	}

	if err := r.validate.Struct(target); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = fe.Tag()
			}
			return apperror.Validation("Invalid payload").WithDetails(details)
		}
		return apperror.Validation(err.Error())
	}
	return nil
}
