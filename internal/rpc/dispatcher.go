package rpc

import (
	"context"
	"fmt"
	"time"

	"church-portal-be/internal/pkg/apperror"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const unknownAction = "unknown"

// Dispatcher resolves envelopes against a Registry. It holds no business state.
type Dispatcher struct {
	registry *Registry
	logger   logger.ILogger
	tracer   trace.Tracer
}

func NewDispatcher(registry *Registry, log logger.ILogger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   log,
		tracer:   otel.Tracer("church-portal-be/rpc"),
	}
}

// Dispatch handles one raw frame and always produces a response carrying the request id
// (or InvalidID when that could not be read).
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, raw []byte) (resp Response) {
	start := time.Now()
	label := unknownAction

	req, id, err := ParseRequest(raw)
	if err != nil {
		resp = Fail(id, err)
		d.observe(label, resp, start)
		return resp
	}

	desc, ok := d.registry.lookup(req.Action)
	if !ok {
		resp = Fail(id, apperror.Validation(fmt.Sprintf("Unknown action: %s", req.Action)))
		d.observe(label, resp, start)
		return resp
	}
	label = desc.action

	ctx, span := d.tracer.Start(ctx, "rpc "+desc.action, trace.WithAttributes(
		attribute.String("rpc.action", desc.action),
		attribute.String("rpc.request_id", id),
		attribute.String("ws.connection_id", conn.ID()),
	))
	defer func() {
		if resp.Error != nil {
			span.SetAttributes(attribute.String("rpc.error_code", string(resp.Error.Code)))
			if resp.Error.Code == apperror.CodeInternal {
				span.SetStatus(codes.Error, resp.Error.Message)
			}
		}
		span.End()
		d.observe(label, resp, start)
	}()

	data, err := d.invoke(ctx, conn, desc, req)
	if err != nil {
		appErr := apperror.From(err)
		if appErr.Code == apperror.CodeInternal {
			d.logger.Error("Dispatcher", "Action failed", map[string]interface{}{
				"action":        req.Action,
				"request_id":    id,
				"connection_id": conn.ID(),
				"error":         err,
			})
		} else {
			d.logger.Debug("Dispatcher", "Action rejected", map[string]interface{}{
				"action": req.Action,
				"code":   appErr.Code,
				"reason": appErr.Message,
			})
		}
		return Fail(id, appErr)
	}
	return Ok(id, data)
}

func (d *Dispatcher) invoke(ctx context.Context, conn Conn, desc *descriptor, req Request) (data interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.Internal(fmt.Errorf("panic in %s: %v", desc.action, r))
		}
	}()

	id := conn.Identity()
	if err := desc.auth.check(id); err != nil {
		return nil, err
	}

	call := &Call{
		Conn:      conn,
		Identity:  id,
		RequestID: req.ID,
		Action:    req.Action,
		Meta:      req.Meta,
	}
	return desc.invoke(ctx, call, req.Payload)
}

func (d *Dispatcher) observe(action string, resp Response, start time.Time) {
	code := "OK"
	if resp.Error != nil {
		code = string(resp.Error.Code)
	}
	metrics.ObserveDispatch(action, code, time.Since(start))
}
