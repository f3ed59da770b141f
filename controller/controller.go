// Package controller defines the per-call protocol-metadata side channel
// that travels alongside a message bundle through every pipeline stage.
//
// A Controller lets a user method shape a protocol-specific response (an
// HTTP status, a raw body override, a content type) without its signature
// depending on which protocol carried the call. It is created on request
// ingress and is the same object returned on response egress — user code
// mutates it in place.
package controller

// Controller is a mutable, per-call record. It has exactly one owner at a
// time: the goroutine currently processing the call. It must never be
// shared across goroutines/tasks, so it carries no internal locking.
type Controller struct {
	status          int
	hasStatus       bool
	responseBody    []byte
	hasResponseBody bool
	contentType     string
	hasContentType  bool
	requestHeaders  map[string]string
	responseHeaders map[string]string
	remoteAddr      string
}

// New creates a Controller for an inbound call. requestHeaders is treated
// as read-only for the lifetime of the call.
func New(remoteAddr string, requestHeaders map[string]string) *Controller {
	if requestHeaders == nil {
		requestHeaders = map[string]string{}
	}
	return &Controller{
		requestHeaders:  requestHeaders,
		responseHeaders: make(map[string]string),
		remoteAddr:      remoteAddr,
	}
}

// RemoteAddr returns the peer address captured at ingress.
func (c *Controller) RemoteAddr() string { return c.remoteAddr }

// RequestHeader returns a header from the request, and whether it was set.
func (c *Controller) RequestHeader(key string) (string, bool) {
	v, ok := c.requestHeaders[key]
	return v, ok
}

// RequestHeaders returns the full read-only request header map.
func (c *Controller) RequestHeaders() map[string]string {
	return c.requestHeaders
}

// SetStatus records an explicit protocol status (e.g. an HTTP status code).
// Protocols that have no notion of status (the binary RPC protocol) ignore it.
func (c *Controller) SetStatus(status int) {
	c.status = status
	c.hasStatus = true
}

// Status returns the explicit status set by user code, if any.
func (c *Controller) Status() (int, bool) {
	return c.status, c.hasStatus
}

// SetResponseBody overrides the encoded response body. When set, the
// protocol writer uses this instead of the codec's encoded output — this
// is how an HTTP method can return a non-protobuf payload (e.g. plain text).
func (c *Controller) SetResponseBody(body []byte) {
	c.responseBody = body
	c.hasResponseBody = true
}

// ResponseBody returns the override body, if any.
func (c *Controller) ResponseBody() ([]byte, bool) {
	return c.responseBody, c.hasResponseBody
}

// SetContentType overrides the response content type.
func (c *Controller) SetContentType(ct string) {
	c.contentType = ct
	c.hasContentType = true
}

// ContentType returns the overridden content type, if any.
func (c *Controller) ContentType() (string, bool) {
	return c.contentType, c.hasContentType
}

// SetResponseHeader sets a header to be written with the response.
func (c *Controller) SetResponseHeader(key, value string) {
	c.responseHeaders[key] = value
}

// ResponseHeaders returns the mutable response header map.
func (c *Controller) ResponseHeaders() map[string]string {
	return c.responseHeaders
}
