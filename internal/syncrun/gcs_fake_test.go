package syncrun_test

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/cboudereau/gcs-rsync/pkg/crc32c"
)

// fakeGCSServer is a minimal in-memory stand-in for the GCS JSON API v1,
// covering exactly the requests syncrun.Run issues: list, get, download,
// simple/resumable upload, and delete. It exists so syncrun.Run's orchestration
// can be exercised end-to-end without a live bucket, mirroring the donor's
// httptest-backed harness style.
type fakeGCSServer struct {
	mu      sync.Mutex
	objects map[string][]byte

	// listFailuresRemaining, when > 0, makes the next N list requests
	// return 503 before succeeding, to exercise the retry path.
	listFailuresRemaining int

	server *httptest.Server
}

func newFakeGCSServer() *fakeGCSServer {
	f := &fakeGCSServer{objects: make(map[string][]byte)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))

	return f
}

func (f *fakeGCSServer) URL() string { return f.server.URL }
func (f *fakeGCSServer) Close()      { f.server.Close() }

func (f *fakeGCSServer) seed(name string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = content
}

func (f *fakeGCSServer) failNextLists(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listFailuresRemaining = n
}

type fakeObjectJSON struct {
	Name   string `json:"name"`
	Size   string `json:"size"`
	CRC32C string `json:"crc32c"`
}

func (f *fakeGCSServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/o"):
		f.handleList(w, r)
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/") && r.URL.Query().Get("uploadType") == "multipart":
		f.handleSimpleUpload(w, r)
	case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/") && r.URL.Query().Get("uploadType") == "resumable":
		f.handleResumableInitiate(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/resumable/"):
		f.handleResumablePut(w, r)
	case r.Method == http.MethodGet && r.URL.Query().Get("alt") == "media":
		f.handleDownload(w, r)
	case r.Method == http.MethodGet:
		f.handleGetMetadata(w, r)
	case r.Method == http.MethodDelete:
		f.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGCSServer) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if f.listFailuresRemaining > 0 {
		f.listFailuresRemaining--
		f.mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)

		return
	}

	prefix := r.URL.Query().Get("prefix")

	var items []fakeObjectJSON
	for name, content := range f.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		items = append(items, fakeObjectJSON{
			Name:   name,
			Size:   strconv.Itoa(len(content)),
			CRC32C: crc32c.EncodeGCS(crc32c.Sum(content)),
		})
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
}

func objectNameFromPath(path string) string {
	parts := strings.Split(path, "/o/")
	if len(parts) != 2 {
		return ""
	}

	name := parts[1]
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}

	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return name
	}

	return unescaped
}

func (f *fakeGCSServer) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	name := objectNameFromPath(r.URL.Path)

	f.mu.Lock()
	content, ok := f.objects[name]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fakeObjectJSON{
		Name:   name,
		Size:   strconv.Itoa(len(content)),
		CRC32C: crc32c.EncodeGCS(crc32c.Sum(content)),
	})
}

func (f *fakeGCSServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := objectNameFromPath(r.URL.Path)

	f.mu.Lock()
	content, ok := f.objects[name]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	_, _ = w.Write(content)
}

func (f *fakeGCSServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := objectNameFromPath(r.URL.Path)

	f.mu.Lock()
	_, ok := f.objects[name]
	delete(f.objects, name)
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (f *fakeGCSServer) handleSimpleUpload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var meta struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	contentPart, err := mr.NextPart()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(contentPart)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.seed(meta.Name, content)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fakeObjectJSON{
		Name:   meta.Name,
		Size:   strconv.Itoa(len(content)),
		CRC32C: crc32c.EncodeGCS(crc32c.Sum(content)),
	})
}

func (f *fakeGCSServer) handleResumableInitiate(w http.ResponseWriter, r *http.Request) {
	var meta struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&meta)

	w.Header().Set("Location", fmt.Sprintf("%s/resumable/%s", f.server.URL, strings.ReplaceAll(meta.Name, "/", "%2F")))
	w.WriteHeader(http.StatusOK)
}

func (f *fakeGCSServer) handleResumablePut(w http.ResponseWriter, r *http.Request) {
	name := strings.ReplaceAll(strings.TrimPrefix(r.URL.Path, "/resumable/"), "%2F", "/")

	content, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.seed(name, content)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fakeObjectJSON{
		Name:   name,
		Size:   strconv.Itoa(len(content)),
		CRC32C: crc32c.EncodeGCS(crc32c.Sum(content)),
	})
}
