// Package notify carries user-visible error notices out of the session core.
// Sinks are fire-and-forget.
package notify

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

type Sink interface {
	Error(msg string)
}

// Func adapts a function to Sink.
type Func func(msg string)

func (f Func) Error(msg string) { f(msg) }

// Discard drops every notice.
var Discard Sink = Func(func(string) {})

// LogSink writes notices to the structured log.
type LogSink struct {
	Log *zap.SugaredLogger
}

func (s LogSink) Error(msg string) { s.Log.Warnw("user notice", "msg", msg) }

// Terminal prints notices in red to w.
type Terminal struct {
	W io.Writer
}

func (t Terminal) Error(msg string) {
	fmt.Fprintln(t.W, color.New(color.FgRed).Sprint(msg))
}

// Recorder keeps notices in memory.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *Recorder) Error(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// FlashCookie is the cookie the gateway uses to hand a notice to the next page.
const FlashCookie = "console_notice"

// Flash stores the notice in a short-lived cookie on the response.
type Flash struct {
	W http.ResponseWriter
}

func (f Flash) Error(msg string) {
	http.SetCookie(f.W, &http.Cookie{
		Name: FlashCookie, Value: url.QueryEscape(msg), Path: "/", MaxAge: 30,
		SameSite: http.SameSiteLaxMode,
	})
}

// TakeFlash returns and expires the pending notice on r, if any.
func TakeFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(FlashCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: FlashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

// Multi fans a notice out to several sinks.
func Multi(sinks ...Sink) Sink {
	return Func(func(msg string) {
		for _, s := range sinks {
			s.Error(msg)
		}
	})
}
