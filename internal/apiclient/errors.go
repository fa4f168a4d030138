package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// User-facing messages. Every failed call resolves to exactly one of these
// or to a server supplied detail.
const (
	UnauthorizedMessage   = "未授权或登录已过期"
	SessionExpiredNotice  = "登录状态已过期，请重新登录！"
	BinaryFallbackMessage = "导出失败：服务器返回错误"
	BinaryParseMessage    = "请求失败：无法解析服务器错误信息。"
	BinaryReadMessage     = "请求失败：读取 Blob 错误。"
	UnknownMessage        = "未知网络错误"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 1 << 20

// ErrUnauthorized matches (errors.Is) every call rejected because the server
// no longer accepts the session.
var ErrUnauthorized = errors.New(UnauthorizedMessage)

type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindBinaryBody
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBinaryBody:
		return "binary_error"
	case KindStructured:
		return "error"
	default:
		return "unknown"
	}
}

// Error is the only error shape callers of the client see. Error() is ready
// to display.
type Error struct {
	Kind    Kind
	Status  int // 0 when no response arrived
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Kind == KindUnauthorized
}

// failure is the classified form of a failed exchange, decided once at the
// transport boundary.
type failure interface {
	kind() Kind
}

// unauthorizedFailure: the server rejected the session (401/403).
type unauthorizedFailure struct {
	status int
}

// binaryBodyFailure: a call that expected a file got an error document
// instead. The body is still unread.
type binaryBodyFailure struct {
	status int
	body   io.Reader
}

// structuredFailure: any other failure, with the parsed error document (if
// any) and the transport-level message.
type structuredFailure struct {
	status    int
	payload   map[string]any
	transport string
	err       error
}

func (unauthorizedFailure) kind() Kind { return KindUnauthorized }
func (binaryBodyFailure) kind() Kind   { return KindBinaryBody }
func (structuredFailure) kind() Kind   { return KindStructured }

// classify turns a non-2xx response into a failure. Binary-expected calls
// keep the body for asynchronous decoding; others have it parsed here.
func classify(resp *http.Response, binary bool) failure {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return unauthorizedFailure{status: resp.StatusCode}
	case binary:
		return binaryBodyFailure{status: resp.StatusCode, body: resp.Body}
	}
	f := structuredFailure{
		status:    resp.StatusCode,
		transport: fmt.Sprintf("Request failed with status code %d", resp.StatusCode),
	}
	if b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		_ = json.Unmarshal(b, &f.payload)
	}
	return f
}

// transportFailure covers exchanges that produced no response at all.
func transportFailure(err error) failure {
	return structuredFailure{transport: err.Error(), err: err}
}

func (f structuredFailure) resolve() *Error {
	msg, ok := detailText(f.payload)
	if !ok {
		msg = f.transport
	}
	if msg == "" {
		msg = UnknownMessage
	}
	return &Error{Kind: KindStructured, Status: f.status, Message: msg, Err: f.err}
}

// decode reads the error document out of a binary body. Reading suspends the
// caller until the body is drained or the request context ends; either way
// the result is an *Error like every other path.
func (f binaryBodyFailure) decode() *Error {
	e := &Error{Kind: KindBinaryBody, Status: f.status}
	b, err := io.ReadAll(io.LimitReader(f.body, maxErrorBody))
	if err != nil {
		e.Message, e.Err = BinaryReadMessage, err
		return e
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		e.Message, e.Err = BinaryParseMessage, err
		return e
	}
	if doc == nil {
		e.Message = BinaryParseMessage
		return e
	}
	obj, _ := doc.(map[string]any)
	if msg, ok := detailText(obj); ok {
		e.Message = msg
	} else {
		e.Message = BinaryFallbackMessage
	}
	return e
}

// detailText extracts the server's "detail" field. Non-string details
// (validation error lists) are rendered as compact JSON.
func detailText(doc map[string]any) (string, bool) {
	v, ok := doc["detail"]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, s != ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}
