package notify

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderAndMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi(a, b, Discard).Error("权限不足，无法访问该页面。")
	assert.Equal(t, []string{"权限不足，无法访问该页面。"}, a.Messages())
	assert.Equal(t, a.Messages(), b.Messages())
}

func TestTerminal(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	Terminal{W: &buf}.Error("登录状态已过期，请重新登录！")
	assert.Equal(t, "登录状态已过期，请重新登录！\n", buf.String())
}

func TestFlashRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	Flash{W: rec}.Error("权限不足，无法访问该页面。")
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/403", nil)
	req.AddCookie(cookies[0])
	out := httptest.NewRecorder()
	assert.Equal(t, "权限不足，无法访问该页面。", TakeFlash(out, req))
	assert.Equal(t, "", TakeFlash(out, httptest.NewRequest(http.MethodGet, "/", nil)))
}
