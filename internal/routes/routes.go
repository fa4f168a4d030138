package routes

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixed navigation targets.
const (
	LoginName     = "login"
	LoginPath     = "/login"
	HomePath      = "/"
	ForbiddenPath = "/403"
	RedirectParam = "redirect"
)

// Route describes one navigable view.
type Route struct {
	Name               string `yaml:"name" json:"name"`
	Path               string `yaml:"path" json:"path"`
	Title              string `yaml:"title,omitempty" json:"title,omitempty"`
	Public             bool   `yaml:"public,omitempty" json:"public,omitempty"`
	RequiredPermission string `yaml:"requiredPermission,omitempty" json:"requiredPermission,omitempty"`
	FullScreen         bool   `yaml:"fullScreen,omitempty" json:"fullScreen,omitempty"`
}

// IsLogin reports whether r is the login route.
func (r Route) IsLogin() bool { return r.Name == LoginName }

// Table is the console route table. Paths that match no route are sent to
// Fallback.
type Table struct {
	Routes   []Route `yaml:"routes"`
	Fallback string  `yaml:"fallback"`

	byPath map[string]int
}

//go:embed routes.yaml
var defaultTable []byte

// Default returns the built-in route table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded route table: %v", err))
	}
	return t
}

// Load reads a route table from a YAML file; an empty path yields Default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return Parse(b)
}

// Parse decodes and indexes a YAML route table.
func Parse(b []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse route table: %w", err)
	}
	t.byPath = make(map[string]int, len(t.Routes))
	for i, r := range t.Routes {
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("route %q: path %q must start with /", r.Name, r.Path)
		}
		if _, dup := t.byPath[r.Path]; dup {
			return nil, fmt.Errorf("route %q: duplicate path %s", r.Name, r.Path)
		}
		t.byPath[r.Path] = i
	}
	if t.Fallback != "" {
		if _, ok := t.byPath[t.Fallback]; !ok {
			return nil, fmt.Errorf("fallback %s is not a declared route", t.Fallback)
		}
	}
	return &t, nil
}

// Match finds the route for a request path. Trailing slashes are ignored.
func (t *Table) Match(path string) (Route, bool) {
	if path != "/" {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	i, ok := t.byPath[path]
	if !ok {
		return Route{}, false
	}
	return t.Routes[i], true
}

// EscapeComponent escapes s the way a browser's encodeURIComponent does.
func EscapeComponent(s string) string {
	e := strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
	return componentUnescaper.Replace(e)
}

var componentUnescaper = strings.NewReplacer(
	"%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*",
)

// LoginURL is the login route carrying resume as the pending navigation.
func LoginURL(resume string) string {
	return LoginPath + "?" + RedirectParam + "=" + EscapeComponent(resume)
}

// SafeResume returns the pending navigation target if it is a local path,
// otherwise HomePath. Browsers drop tab, CR and LF while parsing a URL and treat a backslash as a
// slash, so any control byte is rejected before the path shape is checked.
func SafeResume(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return HomePath
	}
	if strings.IndexFunc(target, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return HomePath
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return HomePath
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return HomePath
	}
	return target
}
