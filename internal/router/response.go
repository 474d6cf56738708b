package router

import (
	"io"
	"net/http"
)

// Response is a fully resolved HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte

	// Stream, when set, is copied after Body and closed.
	Stream io.ReadCloser
}

// NewResponse returns a response with an empty header map.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// Close releases the stream, if any.
func (r *Response) Close() error {
	if r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// Write writes the response to w and returns the number of body bytes
// written. HEAD responses carry headers only.
func (r *Response) Write(w http.ResponseWriter, method string) (int64, error) {
	defer func() { _ = r.Close() }()

	dst := w.Header()
	for k, v := range r.Header {
		dst[k] = append([]string(nil), v...)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if method == http.MethodHead {
		return 0, nil
	}

	n, err := w.Write(r.Body)
	written := int64(n)
	if err != nil || r.Stream == nil {
		return written, err
	}
	m, err := io.Copy(w, r.Stream)
	return written + m, err
}
