package http

import "strings"

// ParseRequest decodes the first delivery read from a connection.
//
// The buffer is split on single spaces: the first token is the method and the
// second is the raw path. Anything after is ignored, headers included. There is
// no validation; a buffer with fewer than two tokens yields empty fields, which
// the router resolves to its 404 fallback.
func ParseRequest(data []byte) *Request {
	parts := strings.SplitN(string(data), " ", 3)

	req := &Request{Method: parts[0]}
	if len(parts) > 1 {
		req.Path = parts[1]
	}
	return req
}
