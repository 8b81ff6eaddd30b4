/*
Package webby is a minimal HTTP/1.x request-dispatch framework built directly
on raw stream sockets.

Each accepted connection serves exactly one request. The engine reads the
first delivery from the socket, takes the method and path from the request
line, runs the optional middleware (or the route table directly), writes the
response and closes the connection. Headers and bodies of requests are not
parsed and there is no keep-alive, chunked encoding or TLS.

Quick Start

	package main

	import (
		"github.com/searchktools/webby/app"
		"github.com/searchktools/webby/config"
		"github.com/searchktools/webby/core/http"
		"github.com/searchktools/webby/core/static"
	)

	func main() {
		cfg := config.New()
		application := app.New(cfg)

		engine := application.Engine()
		engine.GET("/hello", func(req *http.Request, res *http.Response) {
			res.Set("Content-Type", "text/plain")
			res.SendString("Hello, World!")
		})
		engine.Use(static.New(cfg.PublicDir))

		application.Run()
	}

Routing

Routes are matched by exact route key, "METHOD /normalized/path". Paths are
normalized by collapsing slashes, stripping protocol, query, fragment and
filename shaped text from each segment, dropping the trailing slash and
lowercasing, so "/Gallery/" and "/gallery?x=1" both reach GET /gallery. A miss
answers 404 with the text/plain body "Page not found.".

Modules

  - app: application lifecycle and signal handling
  - config: flags, JSON file and WEBBY_* environment configuration
  - core: the connection dispatcher (accept, read, dispatch, close)
  - core/http: request decoding, response building, status and MIME tables
  - core/router: path normalization and the route table
  - core/static: static file middleware
  - core/poller: epoll (Linux) and kqueue (BSD/macOS) readiness notification
  - core/pools: read buffers and the dispatch worker pool
  - core/observability: per-route request statistics
  - examples/gallery: the demo site
*/
package webby
