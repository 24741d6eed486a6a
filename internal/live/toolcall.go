package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pwmlive/pwmlive/internal/observe"
)

// Ack is the placeholder result for calls that produce no value.
type Ack struct {
	Result string `json:"result"`
}

// DefaultAck is sent as the result of a call whose handler returned nil,
// failed, or panicked. The remote model does not continue generating until
// every call is answered.
var DefaultAck = Ack{Result: "ok"}

var defaultAckJSON = json.RawMessage(`{"result":"ok"}`)

// dispatchToolCall resolves a batch on its own goroutine so the receive loop
// keeps draining audio while tools run. An empty batch sends nothing.
func (s *Session) dispatchToolCall(calls []FunctionCall) {
	if len(calls) == 0 {
		return
	}
	go s.resolveBatch(calls)
}

// resolveBatch invokes the calls of a batch one after another in arrival
// order, so their side effects land in the order the model asked for them,
// and flushes all responses in one message once the last one resolves.
func (s *Session) resolveBatch(calls []FunctionCall) {
	responses := make([]FunctionResponse, 0, len(calls))
	for _, call := range calls {
		responses = append(responses, s.resolveCall(s.ctx, call))
	}

	payload, err := encodeToolResponse(responses)
	if err != nil {
		s.log.Error("encode tool response", "err", err)
		return
	}
	switch err := s.write(payload); {
	case err == nil:
	case errors.Is(err, ErrClosed), s.ctx.Err() != nil:
		s.log.Debug("discarding tool response after close", "calls", len(calls))
	default:
		s.reportError(fmt.Errorf("%w: send tool response: %w", ErrConnection, err))
	}
}

func (s *Session) resolveCall(ctx context.Context, call FunctionCall) FunctionResponse {
	ctx, span := observe.StartSpan(ctx, "live.tool_call",
		trace.WithAttributes(
			attribute.String("tool.name", call.Name),
			attribute.String("tool.call_id", call.ID),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := s.invoke(ctx, call)
	s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())

	var encoded json.RawMessage
	if err == nil && result != nil {
		if encoded, err = json.Marshal(result); err != nil {
			err = fmt.Errorf("live: encode result of tool %q: %w", call.Name, err)
		}
	}

	status := "ok"
	switch {
	case err != nil:
		status = "error"
		observe.EndSpanError(span, err)
		observe.Logger(ctx).Warn("tool call failed, sending default ack",
			"tool", call.Name, "id", call.ID, "err", err)
		encoded = defaultAckJSON
	case encoded == nil:
		encoded = defaultAckJSON
	}
	s.metrics.RecordToolCall(ctx, call.Name, status)

	return FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]any{"result": encoded},
	}
}

// invoke calls the host handler, converting a panic into an error. Without a
// handler every call resolves to an empty object.
func (s *Session) invoke(ctx context.Context, call FunctionCall) (result any, err error) {
	if s.cb.OnToolCall == nil {
		return map[string]any{}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("live: tool %q panicked: %v", call.Name, r)
		}
	}()
	return s.cb.OnToolCall(ctx, call.Name, call.Args)
}
