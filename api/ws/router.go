package ws

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc processes one packet. A non-nil result is sent back as a
// "<type>_result" packet with the request's seq.
type HandlerFunc func(ctx context.Context, s *Session, in *Incoming) (any, error)

// ErrorPayload is the body of an "error" packet.
type ErrorPayload struct {
	Request string `json:"request"`
	Error   string `json:"error"`
}

// Router dispatches incoming packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Dispatch decodes one frame, validates seq and invokes the handler.
func (r *Router) Dispatch(s *Session, kind int, raw []byte) {
	in, err := decodePacket(kind, raw)
	if err != nil {
		r.logger.Warn("malformed packet", zap.String("session", s.ID), zap.Error(err))
		return
	}
	s.setBinary(in.Binary)

	// Seq == 0 means no seq tracking.
	if in.Seq != 0 && in.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("session", s.ID),
			zap.Uint64("seq", in.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if in.Seq != 0 {
		s.LastSeq = in.Seq
	}

	fn, ok := r.handlers[in.Type]
	if !ok {
		s.Send(&Packet{Seq: in.Seq, Type: "error", Payload: ErrorPayload{Request: in.Type, Error: "unknown message type"}})
		return
	}

	traceID := uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, traceID)
	result, err := fn(ctx, s, in)
	if err != nil {
		var he *HandlerError
		if !errors.As(err, &he) {
			r.logger.Error("handler error",
				zap.String("type", in.Type),
				zap.String("session", s.ID),
				zap.String("trace_id", traceID),
				zap.Error(err))
		}
		s.Send(&Packet{Seq: in.Seq, Type: "error", Payload: ErrorPayload{Request: in.Type, Error: err.Error()}})
		return
	}
	if result != nil {
		s.Send(&Packet{Seq: in.Seq, Type: in.Type + "_result", Payload: result})
	}
}

// HandlerError is a request error reported to the host but not logged.
type HandlerError struct{ Msg string }

func (e *HandlerError) Error() string { return e.Msg }

func badRequest(msg string) error { return &HandlerError{Msg: msg} }

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
