// Package execution submits, polls and manages remote jobs over any
// connection that can produce an auth header and resource URIs.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/ports"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	maxDocumentBytes    = 16 << 20
	defaultPollInterval = 5 * time.Second
	uploadsField        = "uploads"
)

// Client holds no job state; every query goes to the service.
type Client struct {
	Conn       ports.Connection
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Progress receives download progress. Nil disables reporting.
	Progress ProgressFunc
	// Polled receives every status document Wait fetches, the final one included.
	Polled func(domain.Document)
}

type SubmitRequest struct {
	// Type is the emulator or backend type the job runs on.
	Type           string
	Name           string
	Label          string
	TimeoutSeconds int
	Files          []Upload
}

// Upload is a file part, either a path opened at submit time or an open stream.
type Upload struct {
	Name   string
	Path   string
	Reader io.Reader
}

func FromPath(path string) Upload {
	return Upload{Name: filepath.Base(path), Path: path}
}

func FromReader(name string, r io.Reader) Upload {
	return Upload{Name: name, Reader: r}
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (domain.Execution, error) {
	if req.TimeoutSeconds <= 0 {
		return domain.Execution{}, fmt.Errorf("%w: timeout must be positive, got %d", domain.ErrInvalidArgument, req.TimeoutSeconds)
	}

	uploads, closeUploads, err := openUploads(req.Files)
	if err != nil {
		return domain.Execution{}, err
	}
	defer closeUploads()

	fields := [][2]string{
		{"name", req.Name},
		{"label", req.Label},
		{"emulatorType", req.Type},
		{"timeout", strconv.Itoa(req.TimeoutSeconds)},
	}

	body, contentType := streamForm(fields, uploads)
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.Conn.ResourceURI("request"), body)
	if err != nil {
		_ = body.Close()
		return domain.Execution{}, fmt.Errorf("submit job: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	doc, err := c.doJSON(httpReq, "submit job")
	if err != nil {
		return domain.Execution{}, err
	}

	id := doc.ID()
	if id == "" {
		return domain.Execution{}, errors.New("submit job: response missing execution id")
	}

	c.Logger.Debug().Str("execution", id).Int("files", len(uploads)).Msg("job submitted")
	return domain.Execution{ID: id}, nil
}

func (c *Client) Status(ctx context.Context, execution domain.Execution) (domain.Document, error) {
	if err := validateExecution(execution); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, c.Conn.ResourceURI("request", execution.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	return c.doJSON(req, "get job status")
}

func (c *Client) IsDone(ctx context.Context, execution domain.Execution) (bool, error) {
	return c.statusIs(ctx, execution, domain.Status.IsDone)
}

func (c *Client) IsFailed(ctx context.Context, execution domain.Execution) (bool, error) {
	return c.statusIs(ctx, execution, domain.Status.IsFailed)
}

func (c *Client) IsStarted(ctx context.Context, execution domain.Execution) (bool, error) {
	return c.statusIs(ctx, execution, domain.Status.IsStarted)
}

func (c *Client) IsCanceled(ctx context.Context, execution domain.Execution) (bool, error) {
	return c.statusIs(ctx, execution, domain.Status.IsCanceled)
}

func (c *Client) statusIs(ctx context.Context, execution domain.Execution, predicate func(domain.Status) bool) (bool, error) {
	doc, err := c.Status(ctx, execution)
	if err != nil {
		return false, err
	}
	return predicate(doc.Status()), nil
}

func (c *Client) Stop(ctx context.Context, execution domain.Execution) (bool, error) {
	return c.postAction(ctx, execution, "stop-execution", "stop job")
}

func (c *Client) DeleteFiles(ctx context.Context, execution domain.Execution) (bool, error) {
	return c.postAction(ctx, execution, "delete-files", "delete job files")
}

func (c *Client) postAction(ctx context.Context, execution domain.Execution, resource string, errContext string) (bool, error) {
	if err := validateExecution(execution); err != nil {
		return false, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.Conn.ResourceURI(resource, execution.ID), nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errContext, err)
	}

	resp, err := c.do(req, errContext)
	if err != nil {
		return false, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentBytes))
	_ = resp.Body.Close()

	return true, nil
}

// List returns one page of job records as the service sent them.
func (c *Client) List(ctx context.Context, filter domain.ListFilter) ([]domain.Document, error) {
	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	if filter.UserEmail != "" {
		query.Set("userEmail", filter.UserEmail)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Page > 0 {
		query.Set("page", strconv.Itoa(filter.Page))
	}

	uri := c.Conn.ResourceURI("request")
	if encoded := query.Encode(); encoded != "" {
		uri += "?" + encoded
	}

	req, err := c.newRequest(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	doc, err := c.doJSON(req, "list jobs")
	if err != nil {
		return nil, err
	}

	page := doc.Get("content")
	if !page.IsArray() {
		page = gjson.ParseBytes(doc)
	}
	if !page.IsArray() {
		return nil, errors.New("list jobs: unexpected response shape")
	}

	records := make([]domain.Document, 0, len(page.Array()))
	for _, record := range page.Array() {
		records = append(records, domain.Document(record.Raw))
	}
	return records, nil
}

// Wait polls the job status until it reaches a terminal state.
func (c *Client) Wait(ctx context.Context, execution domain.Execution, interval time.Duration) (domain.Document, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for {
		doc, err := c.Status(ctx, execution)
		if err != nil {
			return nil, err
		}
		if c.Polled != nil {
			c.Polled(doc)
		}
		if doc.Status().IsDone() {
			return doc, nil
		}
		c.Logger.Debug().Str("execution", execution.ID).Str("status", string(doc.Status())).Msg("job not finished")

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method string, uri string, body io.Reader) (*http.Request, error) {
	name, value, err := c.Conn.AuthHeader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(name, value)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and converts any non-2xx answer into a *domain.RemoteError.
// The caller closes the body of a successful response.
func (c *Client) do(req *http.Request, errContext string) (*http.Response, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errContext, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		return nil, domain.NewRemoteError(errContext, resp.StatusCode, body)
	}

	return resp, nil
}

func (c *Client) doJSON(req *http.Request, errContext string) (domain.Document, error) {
	resp, err := c.do(req, errContext)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", errContext, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: response is not valid JSON", errContext)
	}
	return domain.Document(body), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func validateExecution(execution domain.Execution) error {
	if strings.TrimSpace(execution.ID) == "" {
		return fmt.Errorf("%w: execution id is required", domain.ErrInvalidArgument)
	}
	return nil
}

type openUpload struct {
	name   string
	reader io.Reader
}

// openUploads opens every path upload before any network call is made.
func openUploads(files []Upload) ([]openUpload, func(), error) {
	opened := make([]openUpload, 0, len(files))
	var closers []io.Closer
	closeAll := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}

	for i, file := range files {
		switch {
		case file.Reader != nil:
			name := file.Name
			if name == "" {
				name = fmt.Sprintf("upload-%d", i)
			}
			opened = append(opened, openUpload{name: name, reader: file.Reader})
		case file.Path != "":
			f, err := os.Open(file.Path)
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("%w: open upload: %v", domain.ErrInvalidArgument, err)
			}
			closers = append(closers, f)
			name := file.Name
			if name == "" {
				name = filepath.Base(file.Path)
			}
			opened = append(opened, openUpload{name: name, reader: f})
		default:
			closeAll()
			return nil, func() {}, fmt.Errorf("%w: upload %d has neither a path nor a reader", domain.ErrInvalidArgument, i)
		}
	}

	return opened, closeAll, nil
}

// streamForm writes the multipart form through a pipe so uploads are never
// buffered whole in memory.
func streamForm(fields [][2]string, uploads []openUpload) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeForm(mw, fields, uploads)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, fields [][2]string, uploads []openUpload) error {
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}

	for _, upload := range uploads {
		part, err := mw.CreateFormFile(uploadsField, upload.name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, upload.reader); err != nil {
			return fmt.Errorf("stream upload %s: %w", upload.name, err)
		}
	}
	return nil
}
