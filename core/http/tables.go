package http

import (
	"path/filepath"
	"strings"
)

// Status codes with a registered reason phrase.
const (
	StatusOK                  = 200
	StatusMovedPermanently    = 301
	StatusNotFound            = 404
	StatusInternalServerError = 500
)

var statusTexts = map[int]string{
	StatusOK:                  "OK",
	StatusNotFound:            "Not Found",
	StatusMovedPermanently:    "Moved Permanently",
	StatusInternalServerError: "Internal Server Error",
}

var mimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"html": "text/html",
	"css":  "text/css",
	"txt":  "text/txt",
}

// StatusText returns the reason phrase for code, or "" when the code is unknown.
func StatusText(code int) string {
	return statusTexts[code]
}

// Extension returns the lowercased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// ContentType returns the MIME type for filename's extension, or "" if unknown.
func ContentType(filename string) string {
	return mimeTypes[Extension(filename)]
}
