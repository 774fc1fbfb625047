package execution

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// staticConnection serves a fixed bearer token against a test server root.
type staticConnection struct {
	base  string
	token string
	err   error
}

func (c staticConnection) AuthHeader() (string, string, error) {
	if c.err != nil {
		return "", "", c.err
	}
	return "Authorization", "Bearer " + c.token, nil
}

func (c staticConnection) ResourceURI(parts ...string) string {
	return strings.TrimRight(c.base, "/") + "/qc-catalog/" + strings.Join(parts, "/")
}

type submittedForm struct {
	fields map[string]string
	files  map[string]string
}

// fakeJobService walks a single job through a scripted list of status documents.
type fakeJobService struct {
	mu        sync.Mutex
	statuses  []string
	polls     int
	submitted *submittedForm
	actions   []string
	queries   []string
	auth      []string
	files     map[string]map[int]string
	gzipFiles bool
	// fileName, when set, is sent as the attachment name of every file.
	fileName string
}

func (f *fakeJobService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /qc-catalog/request", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		form := &submittedForm{fields: map[string]string{}, files: map[string]string{}}
		for key, values := range r.MultipartForm.Value {
			form.fields[key] = values[0]
		}
		for _, header := range r.MultipartForm.File["uploads"] {
			file, err := header.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(file)
			_ = file.Close()
			form.files[header.Filename] = string(data)
		}

		f.mu.Lock()
		f.submitted = form
		f.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{"id": "exec-1", "status": "NEW"})
	})

	mux.HandleFunc("GET /qc-catalog/request", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"id":"exec-1","status":"DONE"},{"id":"exec-2","status":"RUNNING"}],"totalElements":2}`))
	})

	mux.HandleFunc("GET /qc-catalog/request/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		if r.PathValue("id") != "exec-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Execution not found"})
			return
		}

		f.mu.Lock()
		index := f.polls
		if index >= len(f.statuses) {
			index = len(f.statuses) - 1
		}
		f.polls++
		body := f.statuses[index]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	mux.HandleFunc("POST /qc-catalog/stop-execution/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.recordAction("stop " + r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /qc-catalog/delete-files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.recordAction("delete-files " + r.PathValue("id"))
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /qc-catalog/files/{id}/{index}", func(w http.ResponseWriter, r *http.Request) {
		f.recordAuth(r)
		source := r.URL.Query().Get("source")
		var index int
		_, _ = fmt.Sscan(r.PathValue("index"), &index)

		f.mu.Lock()
		content, ok := f.files[source][index]
		compress := f.gzipFiles
		name := f.fileName
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "File not found"})
			return
		}

		if name == "" {
			name = fmt.Sprintf("%s-%d.txt", source, index)
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		if compress && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write([]byte(content))
			_ = gz.Close()
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(buf.Bytes())
			return
		}
		_, _ = w.Write([]byte(content))
	})

	return mux
}

func (f *fakeJobService) recordAuth(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
}

func (f *fakeJobService) recordAction(action string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
}

func (f *fakeJobService) form() *submittedForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

func newTestClient(t *testing.T, service *fakeJobService) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(service.handler())
	t.Cleanup(server.Close)

	client := &Client{
		Conn:       staticConnection{base: server.URL, token: "at-0"},
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	}
	return client, server
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
