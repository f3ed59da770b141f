package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"prpc/message"
	"prpc/service"
)

// Logging records the service method, duration, and any error for each call,
// through the zap.SugaredLogger the rest of the server uses instead of the
// teacher's log.Printf.
func Logging(log *zap.SugaredLogger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, serviceName, methodName string, in message.Bundle) (message.Bundle, *service.MethodError) {
			start := time.Now()
			out, methodErr := next(ctx, serviceName, methodName, in)
			duration := time.Since(start)
			if methodErr != nil {
				log.Debugw("rpc call failed", "service", serviceName, "method", methodName, "duration", duration, "kind", methodErr.Kind, "error", methodErr.Text)
			} else {
				log.Debugw("rpc call", "service", serviceName, "method", methodName, "duration", duration)
			}
			return out, methodErr
		}
	}
}
