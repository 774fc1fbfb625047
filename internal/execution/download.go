package execution

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/klauspost/compress/gzip"
)

// Progress reports bytes written for one file. Total is -1 when the size is unknown.
type Progress struct {
	File       string
	Index      int
	Count      int
	Downloaded int64
	Total      int64
}

type ProgressFunc func(Progress)

// DownloadUploadedFiles writes every file uploaded with the job into destDir.
func (c *Client) DownloadUploadedFiles(ctx context.Context, execution domain.Execution, destDir string) ([]string, error) {
	return c.downloadFiles(ctx, execution, destDir, domain.FileSourceUploads)
}

// DownloadResultFiles writes every file produced by the job into destDir.
func (c *Client) DownloadResultFiles(ctx context.Context, execution domain.Execution, destDir string) ([]string, error) {
	return c.downloadFiles(ctx, execution, destDir, domain.FileSourceResults)
}

func (c *Client) downloadFiles(ctx context.Context, execution domain.Execution, destDir string, source domain.FileSource) ([]string, error) {
	doc, err := c.Status(ctx, execution)
	if err != nil {
		return nil, err
	}

	count := doc.Count(source.CountField())
	if count == 0 {
		c.Logger.Warn().
			Str("execution", execution.ID).
			Str("source", string(source)).
			Msg("job has no files to download")
		return []string{}, nil
	}

	if strings.TrimSpace(destDir) == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	written := make([]string, 0, count)
	used := make(map[string]bool, count)
	for i := 0; i < count; i++ {
		path, err := c.downloadFile(ctx, execution, destDir, source, i, count, used)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func (c *Client) downloadFile(ctx context.Context, execution domain.Execution, destDir string, source domain.FileSource, index int, count int, used map[string]bool) (string, error) {
	errContext := fmt.Sprintf("download %s file %d", source, index)

	uri := c.Conn.ResourceURI("files", execution.ID, strconv.Itoa(index)) +
		"?" + url.Values{"source": {string(source)}}.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errContext, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.do(req, errContext)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var body io.Reader = resp.Body
	total := resp.ContentLength
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("%s: %w", errContext, err)
		}
		defer func() { _ = gz.Close() }()
		body = gz
		total = -1
	}
	if total < 0 {
		total = -1
	}

	name := uniqueName(attachmentName(resp.Header.Get("Content-Disposition"), fmt.Sprintf("%s-%d", source, index)), used)
	path := filepath.Join(destDir, name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errContext, err)
	}

	reader := &progressReader{
		reader:   body,
		report:   c.Progress,
		progress: Progress{File: name, Index: index, Count: count, Total: total},
	}
	if _, err := io.Copy(out, reader); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("%s: %w", errContext, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", errContext, err)
	}

	c.Logger.Debug().Str("execution", execution.ID).Str("file", path).Msg("file downloaded")
	return path, nil
}

// attachmentName picks the server-provided file name, reduced to its base so
// it cannot escape the destination directory.
func attachmentName(disposition string, fallback string) string {
	if disposition == "" {
		return fallback
	}

	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return fallback
	}

	name := filepath.Base(filepath.Clean("/" + params["filename"]))
	if name == "" || name == "." || name == "/" || name == string(filepath.Separator) {
		return fallback
	}
	return name
}

// uniqueName returns name, or name with a numeric suffix before its extension
// when an earlier file of the same download already took it.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}

type progressReader struct {
	reader   io.Reader
	report   ProgressFunc
	progress Progress
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 && r.report != nil {
		r.progress.Downloaded += int64(n)
		r.report(r.progress)
	}
	return n, err
}
