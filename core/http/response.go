package http

import (
	"io"
	"strconv"
)

// HeaderContentType is the only header the builder ever fills in on its own.
const HeaderContentType = "Content-Type"

// Response accumulates a status line and headers and writes them, followed by
// the body, in a single Send. Send closes the connection; a Response must not
// be reused afterwards.
type Response struct {
	StatusCode int
	Version    string

	headers map[string]string
	names   []string // insertion order
	conn    io.WriteCloser
}

// NewResponse creates a 200 HTTP/1.1 response that owns conn.
func NewResponse(conn io.WriteCloser) *Response {
	return &Response{
		StatusCode: StatusOK,
		Version:    "HTTP/1.1",
		headers:    make(map[string]string, 4),
		conn:       conn,
	}
}

// Set records a header, overwriting any previous value stored under exactly
// the same name. Names are not case-normalized.
func (r *Response) Set(name, value string) {
	if _, ok := r.headers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.headers[name] = value
}

// Get returns the header stored under name.
func (r *Response) Get(name string) string {
	return r.headers[name]
}

// Status sets the status code.
func (r *Response) Status(code int) *Response {
	r.StatusCode = code
	return r
}

// SendString is Send for a text body.
func (r *Response) SendString(body string) error {
	return r.Send([]byte(body))
}

// Send serializes the response, writes it and closes the connection.
// A second Send writes and closes again; callers must not do that.
func (r *Response) Send(body []byte) error {
	if _, ok := r.headers[HeaderContentType]; !ok {
		r.Set(HeaderContentType, "text/html")
	}

	buf := r.appendHead(make([]byte, 0, 128+len(body)))
	buf = append(buf, body...)

	_, werr := r.conn.Write(buf)
	cerr := r.conn.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

func (r *Response) appendHead(b []byte) []byte {
	b = append(b, r.Version...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(r.StatusCode), 10)
	b = append(b, ' ')
	b = append(b, StatusText(r.StatusCode)...)
	b = append(b, "\r\n"...)

	for _, name := range r.names {
		b = append(b, name...)
		b = append(b, ": "...)
		b = append(b, r.headers[name]...)
		b = append(b, "\r\n"...)
	}

	return append(b, "\r\n"...)
}
