package gateway

import (
	"context"
	"html/template"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"opsconsole/internal/routes"
)

// page is what an allowed navigation hands to the shell.
type page struct {
	Route  routes.Route
	Notice string
	Status int
}

type ctxPageKey struct{}

func withPage(ctx context.Context, p page) context.Context {
	return context.WithValue(ctx, ctxPageKey{}, p)
}

func pageFrom(ctx context.Context) page {
	p, ok := ctx.Value(ctxPageKey{}).(page)
	if !ok {
		p.Status = http.StatusOK
	}
	return p
}

var shellTmpl = template.Must(template.New("shell").Parse(`<!doctype html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>{{with .Route.Title}}{{.}} | {{end}}运营管理后台</title>
</head>
<body data-route="{{.Route.Name}}"{{if .Route.FullScreen}} data-layout="fullscreen"{{end}}>
{{- with .Notice}}
<div class="notice notice-error" role="alert">{{.}}</div>
{{- end}}
<div id="app"></div>
</body>
</html>
`))

type builtin struct {
	log *zap.SugaredLogger
}

func builtinShell(log *zap.SugaredLogger) http.Handler { return builtin{log: log} }

func (b builtin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := pageFrom(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(p.Status)
	if err := shellTmpl.Execute(w, p); err != nil {
		b.log.Warnw("render shell", "err", err, "route", p.Route.Name)
	}
}

// static serves a prebuilt application: index.html for every allowed
// navigation and the bundle under /assets/.
type static struct {
	index  string
	assets http.Handler
}

func staticShell(dir string) http.Handler {
	return &static{
		index:  filepath.Join(dir, "index.html"),
		assets: http.FileServer(http.Dir(dir)),
	}
}

func (s *static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := pageFrom(r.Context())
	b, err := os.ReadFile(s.index)
	if err != nil {
		http.Error(w, "application shell unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(p.Status)
	_, _ = w.Write(b)
}
