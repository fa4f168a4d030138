// Package apiclient is the interceptor pipeline every console API call goes
// through: the request stage attaches the session credential, the response
// stage unwraps payloads and turns every failure into one displayable *Error,
// ending the session when the server rejects it.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"opsconsole/internal/notify"
	"opsconsole/internal/routes"
	"opsconsole/internal/session"
	"opsconsole/pkg/logger"
)

const jsonContentType = "application/json"

var calls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "opsconsole_api_calls_total",
	Help: "Console API calls by pipeline outcome.",
}, []string{"outcome"})

// Navigator is the client's view of the current location. Navigate performs
// a full navigation; it is how a rejected session sends the user to login.
type Navigator interface {
	CurrentPath() string
	Navigate(target string)
}

// Client sends console API calls through the pipeline.
type Client struct {
	base    string
	http    *http.Client
	store   session.Store
	nav     Navigator
	notify  notify.Sink
	log     *zap.SugaredLogger
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped,
// not replaced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.nav = n }
}

func WithNotifier(s notify.Sink) Option {
	return func(c *Client) { c.notify = s }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

// WithTimeout bounds calls that set no timeout of their own. Zero means no
// limit.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New builds a client for the API rooted at baseURL (e.g.
// "http://host/api/"). The store is read on every request and cleared when
// the server rejects the session.
func New(baseURL string, store session.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		store:  store,
		nav:    NewLocation(routes.HomePath, nil),
		notify: notify.Discard,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.OrNop(c.log)

	hc := http.Client{}
	if c.http != nil {
		hc = *c.http
	}
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = otelhttp.NewTransport(&bearerTransport{next: next, store: store, log: c.log})
	c.http = &hc
	return c, nil
}

// Request is one API call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is sent as-is when it is an io.Reader or []byte and JSON-encoded
	// otherwise.
	Body any
	// ContentType overrides the default application/json (multipart uploads
	// pass their boundary type).
	ContentType string
	Header      http.Header
	// Binary marks calls that expect a file rather than a JSON payload.
	Binary  bool
	Timeout time.Duration
}

// Do performs req and returns the response payload. Failures are always
// *Error.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var payload []byte
	err := c.exchange(ctx, req, func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		payload = b
		return err
	})
	return payload, err
}

// Call performs req and decodes the JSON payload into out (if non-nil).
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	b, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &Error{Kind: KindStructured, Message: fmt.Sprintf("decode response: %v", err), Err: err}
	}
	return nil
}

// Download performs a binary call and streams the file into w.
func (c *Client) Download(ctx context.Context, req Request, w io.Writer) (int64, error) {
	req.Binary = true
	var n int64
	err := c.exchange(ctx, req, func(resp *http.Response) error {
		var err error
		n, err = io.Copy(w, resp.Body)
		return err
	})
	return n, err
}

func (c *Client) exchange(ctx context.Context, req Request, onSuccess func(*http.Response) error) error {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hreq, err := c.newRequest(ctx, req)
	if err != nil {
		return c.reject(ctx, transportFailure(err))
	}
	resp, err := c.http.Do(hreq)
	if err != nil {
		return c.reject(ctx, transportFailure(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.reject(ctx, classify(resp, req.Binary))
	}
	if err := onSuccess(resp); err != nil {
		return c.reject(ctx, transportFailure(err))
	}
	calls.WithLabelValues("success").Inc()
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.base + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case io.Reader:
		body = b
	case []byte:
		body = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("Content-Type") == "" {
		ct := req.ContentType
		if ct == "" {
			ct = jsonContentType
		}
		hreq.Header.Set("Content-Type", ct)
	}
	return hreq, nil
}

// reject resolves a classified failure into the caller's error. Every branch
// is handled here and nowhere else.
func (c *Client) reject(ctx context.Context, f failure) error {
	calls.WithLabelValues(f.kind().String()).Inc()
	var e *Error
	switch f := f.(type) {
	case unauthorizedFailure:
		c.endSession(ctx)
		e = &Error{Kind: KindUnauthorized, Status: f.status, Message: UnauthorizedMessage}
	case binaryBodyFailure:
		e = f.decode()
	case structuredFailure:
		e = f.resolve()
	default:
		e = &Error{Kind: KindStructured, Message: UnknownMessage}
	}
	c.log.Debugw("api call failed", "kind", e.Kind.String(), "status", e.Status, "msg", e.Message)
	return e
}

// endSession forgets the rejected credential, tells the user and navigates to
// login with the current path as the resume target. Concurrent rejections
// repeat these steps harmlessly.
func (c *Client) endSession(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warnw("credential clear failed", "err", err)
	}
	c.notify.Error(SessionExpiredNotice)
	c.nav.Navigate(routes.LoginURL(c.nav.CurrentPath()))
}
