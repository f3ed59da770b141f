// Package middleware implements the onion-model chain of cross-cutting
// concerns SPEC_FULL.md §4.11 wraps around dispatcher lookup+invoke: logging,
// timeouts, rate limiting. It keeps the teacher's composition model
// (middleware/middleware.go) but moves the wrapped signature from
// *message.RPCMessage to the (serviceName, methodName, message.Bundle)
// contract the dispatcher and EncapsulatedMethod pipeline use.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
package middleware

import (
	"context"

	"prpc/message"
	"prpc/service"
)

// Handler is the signature shared by the dispatcher-invoking business
// handler and every middleware-wrapped handler around it.
type Handler func(ctx context.Context, serviceName, methodName string, in message.Bundle) (message.Bundle, *service.MethodError)

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next Handler) Handler

// Chain composes middlewares so the first one given is the outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
