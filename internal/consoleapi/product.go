// Package consoleapi wraps the console's backend endpoints. Every call goes
// through the apiclient pipeline, so failures are always *apiclient.Error.
package consoleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opsconsole/internal/apiclient"
)

// SearchParams is a free-form query body; the backend owns its schema.
type SearchParams map[string]any

// Products is the product search, export and import API.
type Products struct {
	c             *apiclient.Client
	uploadTimeout time.Duration
	baseURL       string
}

func NewProducts(c *apiclient.Client, baseURL string, uploadTimeout time.Duration) *Products {
	return &Products{c: c, baseURL: baseURL, uploadTimeout: uploadTimeout}
}

func (p *Products) post(ctx context.Context, path string, params SearchParams) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.c.Call(ctx, apiclient.Request{Method: http.MethodPost, Path: path, Body: params}, &out)
	return out, err
}

func (p *Products) Search(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	return p.post(ctx, "/product/search", params)
}

func (p *Products) SearchBzs(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	return p.post(ctx, "/product/bzs_page_search", params)
}

func (p *Products) SearchGdy(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	return p.post(ctx, "/product/gdy_page_search", params)
}

func (p *Products) SearchCgzt(ctx context.Context, params SearchParams) (json.RawMessage, error) {
	return p.post(ctx, "/product/cgzt_page_search", params)
}

// Export streams the spreadsheet (with images) for params into w.
func (p *Products) Export(ctx context.Context, params SearchParams, w io.Writer) (int64, error) {
	return p.c.Download(ctx, apiclient.Request{
		Method: http.MethodPost, Path: "/product/export_excel_with_images", Body: params,
	}, w)
}

// Upload sends one import file as multipart form field "file" with the
// extended upload timeout.
func (p *Products) Upload(ctx context.Context, filename string, r io.Reader) (json.RawMessage, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	var out json.RawMessage
	err = p.c.Call(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Path:        "/product/upload",
		Body:        &buf,
		ContentType: mw.FormDataContentType(),
		Timeout:     p.uploadTimeout,
	}, &out)
	return out, err
}

// ExportTask is the server's view of an asynchronous export.
type ExportTask struct {
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status,omitempty"`
	Progress float64         `json:"progress,omitempty"`
	FileURL  string          `json:"file_url,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// SubmitExport queues an asynchronous export.
func (p *Products) SubmitExport(ctx context.Context, params SearchParams) (ExportTask, error) {
	return p.task(ctx, apiclient.Request{Method: http.MethodPost, Path: "/product/export_submit", Body: params})
}

// ExportStatus polls an asynchronous export.
func (p *Products) ExportStatus(ctx context.Context, taskID string) (ExportTask, error) {
	return p.task(ctx, apiclient.Request{Method: http.MethodGet, Path: "/product/export_status/" + url.PathEscape(taskID)})
}

func (p *Products) task(ctx context.Context, req apiclient.Request) (ExportTask, error) {
	var raw json.RawMessage
	if err := p.c.Call(ctx, req, &raw); err != nil {
		return ExportTask{}, err
	}
	t := ExportTask{Raw: raw}
	_ = json.Unmarshal(raw, &t)
	return t, nil
}

// PreviewURL is the attachment URL for a stored picture path. Windows path
// separators are normalised before escaping.
func (p *Products) PreviewURL(picPath string) string {
	base := p.baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "product/attachments/" + escapeComponent(strings.ReplaceAll(picPath, `\`, "/"))
}
