package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"prpc/controller"
)

// DefaultContentType is used for both request and response bodies unless
// the controller overrides it.
const DefaultContentType = "application/x-protobuf"

// HTTPRequest is one parsed HTTP/1.1 request: path decoded into
// (service, method) per SPEC_FULL.md §4.3, body as the raw codec payload,
// and a fresh Controller seeded from the request headers.
type HTTPRequest struct {
	ServiceName string
	MethodName  string
	Body        []byte
	Controller  *controller.Controller
	KeepAlive   bool
}

// ReadHTTPRequest reads and parses one HTTP/1.1 request off r, using the
// standard library's own request reader — there is no ecosystem HTTP/1.1
// wire parser that improves on net/http.ReadRequest for this (see
// DESIGN.md).
func ReadHTTPRequest(r *bufio.Reader, remoteAddr string) (*HTTPRequest, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, err
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("protocol: read http body: %w", err)
	}

	path := strings.TrimPrefix(req.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("protocol: malformed http path %q, want /<service>/<method>", req.URL.Path)
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	return &HTTPRequest{
		ServiceName: parts[0],
		MethodName:  parts[1],
		Body:        body,
		Controller:  controller.New(remoteAddr, headers),
		KeepAlive:   !req.Close,
	}, nil
}

// WriteHTTPResponse writes a complete HTTP/1.1 response. Status defaults to
// 200, content type to DefaultContentType, and the body defaults to the
// codec-encoded output unless the controller overrides any of those
// (SPEC_FULL.md §4.3: "responses default to 200 OK with the codec output
// unless the controller sets an explicit status or body override").
func WriteHTTPResponse(w io.Writer, body []byte, ctrl *controller.Controller) error {
	status := http.StatusOK
	if s, ok := ctrl.Status(); ok {
		status = s
	}
	if override, ok := ctrl.ResponseBody(); ok {
		body = override
	}
	contentType := DefaultContentType
	if ct, ok := ctrl.ContentType(); ok {
		contentType = ct
	}

	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	resp.Header.Set("Content-Type", contentType)
	for k, v := range ctrl.ResponseHeaders() {
		resp.Header.Set(k, v)
	}
	return resp.Write(w)
}

// WriteHTTPError writes a minimal HTTP error response for requests that
// never reach an encapsulated method (e.g. dispatcher NotFound, malformed
// path).
func WriteHTTPError(w io.Writer, status int, text string) error {
	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(strings.NewReader(text)),
		ContentLength: int64(len(text)),
	}
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp.Write(w)
}
