package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"prpc/message"
	"prpc/service"
)

// RateLimit rejects calls once the shared token bucket (rate r per second,
// the given burst) is empty. The limiter is built once in the outer
// closure, as in the teacher's rate_limit_middleware.go — building it per
// call would hand every request a fresh full bucket and defeat the limit.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, serviceName, methodName string, in message.Bundle) (message.Bundle, *service.MethodError) {
			if !limiter.Allow() {
				return message.Bundle{Controller: in.Controller}, &service.MethodError{Kind: service.ServerError, Code: 2, Text: "rate limit exceeded"}
			}
			return next(ctx, serviceName, methodName, in)
		}
	}
}
