package channel

import (
	"context"
	"time"

	"prpc/message"
	"prpc/service"
)

// RetryPolicy configures CallWithRetry's exponential backoff, adapted from
// the teacher's middleware/retry_middleware.go. Retrying belongs on the
// client side of an RPC, not the server's handler chain where the teacher
// had it: only the channel knows whether a failure was transport-level
// (worth retrying, possibly against a different backend) or a genuine
// application error (never worth retrying).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// CallWithRetry retries Call on retryable failures (ConnectionLost, Timeout,
// NoHealthyBackend) with exponential backoff, up to policy.MaxAttempts
// additional attempts beyond the first. Each attempt may land on a
// different backend, since backend selection happens fresh inside Call.
func (ch *Channel) CallWithRetry(ctx context.Context, meta *message.RpcRequestMeta, body []byte, policy RetryPolicy) (*message.RpcResponseMeta, []byte, error) {
	req := *meta
	respMeta, respBody, err := ch.Call(ctx, &req, body)
	for attempt := 0; attempt < policy.MaxAttempts && isRetryable(err); attempt++ {
		select {
		case <-time.After(policy.BaseDelay * time.Duration(1<<attempt)):
		case <-ctx.Done():
			return respMeta, respBody, ctx.Err()
		}
		req = *meta
		respMeta, respBody, err = ch.Call(ctx, &req, body)
	}
	return respMeta, respBody, err
}

func isRetryable(err error) bool {
	me, ok := err.(*service.MethodError)
	if !ok {
		return false
	}
	switch me.Kind {
	case service.ConnectionLost, service.Timeout, service.NoHealthyBackend:
		return true
	default:
		return false
	}
}
