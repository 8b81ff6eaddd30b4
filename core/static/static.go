// Package static serves files from disk ahead of the route table.
package static

import (
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/searchktools/webby/core/http"
)

const indexFile = "public/index.html"

// Option configures the middleware.
type Option func(*server)

// WithLogger sends file misses and served files to logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *server) {
		s.logger = logger
	}
}

type server struct {
	dir    string
	logger *log.Logger
}

// New returns a middleware serving files relative to the parent of baseDir.
//
// A request for "/" resolves to <parent>/public/index.html; any other request
// resolves to <parent> joined with the raw request path. When the file cannot
// be read the request is passed to next unchanged. Reads go through an os.Root,
// so paths that climb out of the parent directory are misses.
func New(baseDir string, opts ...Option) http.Middleware {
	s := &server{dir: filepath.Join(baseDir, "..")}
	for _, opt := range opts {
		opt(s)
	}
	return s.serve
}

func (s *server) serve(req *http.Request, res *http.Response, next http.HandlerFunc) {
	name := s.resolve(req.Path)

	data, err := s.read(name)
	if err != nil {
		s.logf("static: %s %q: %v", req.Method, req.Path, err)
		next(req, res)
		return
	}

	res.Set(http.HeaderContentType, http.ContentType(name))
	s.logf("static: %s %q -> %s (%s)", req.Method, req.Path, name, humanize.Bytes(uint64(len(data))))
	res.Send(data)
}

// resolve maps a raw request path to a slash-separated name relative to the
// parent directory. Leading ".." elements survive cleaning and are rejected by
// the root on read.
func (s *server) resolve(p string) string {
	if p == "/" {
		return indexFile
	}
	return path.Clean(strings.TrimLeft(p, "/"))
}

func (s *server) read(name string) ([]byte, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	return root.ReadFile(filepath.FromSlash(name))
}

func (s *server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
