package http

// Request is the decoded request line. It is never mutated after decoding.
type Request struct {
	Method string
	Path   string
}

// HandlerFunc handles one request and must call res.Send exactly once.
type HandlerFunc func(req *Request, res *Response)

// Middleware intercepts a request before routing. It either responds itself
// or hands the request on to next.
type Middleware func(req *Request, res *Response, next HandlerFunc)
