package router

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var slashes = regexp.MustCompile(`/+`)

// Applied in order to every segment, each replacing only its first match:
// protocol, query pair, fragment, then anything domain or filename shaped.
var segmentFilters = []*regexp.Regexp{
	regexp.MustCompile(`http`),
	regexp.MustCompile(`\?\w+=\w+`),
	regexp.MustCompile(`#\w+`),
	regexp.MustCompile(`\w+\.\w+`),
}

// NormalizePath reduces p to a lowercase, slash-delimited path with no empty
// segments and no trailing slash. A path with no surviving segments (such as
// "/" or "///") normalizes to "".
func NormalizePath(p string) string {
	var b strings.Builder
	for _, seg := range slashes.Split(p, -1) {
		for _, re := range segmentFilters {
			seg = replaceFirst(re, seg)
		}
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(seg)
	}

	// Caser keeps state between calls and must not be shared across goroutines.
	return cases.Lower(language.Und).String(b.String())
}

// RouteKey builds the registry key "METHOD /normalized/path".
func RouteKey(method, path string) string {
	return strings.ToUpper(method) + " " + NormalizePath(path)
}

func replaceFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}
