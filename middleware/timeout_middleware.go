package middleware

import (
	"context"
	"time"

	"prpc/message"
	"prpc/service"
)

// Timeout enforces a maximum duration for a call. The handler goroutine is
// not cancelled on expiry — only the caller gives up waiting — matching the
// teacher's timeout_middleware.go; true cancellation still requires the
// handler to observe ctx.Done() itself.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, serviceName, methodName string, in message.Bundle) (message.Bundle, *service.MethodError) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				out message.Bundle
				err *service.MethodError
			}
			done := make(chan result, 1)
			go func() {
				out, err := next(ctx, serviceName, methodName, in)
				done <- result{out, err}
			}()

			select {
			case r := <-done:
				return r.out, r.err
			case <-ctx.Done():
				return message.Bundle{Controller: in.Controller}, &service.MethodError{Kind: service.Timeout}
			}
		}
	}
}
