package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// fakeFile is one entry of the fake Drive
type fakeFile struct {
	ID       string
	Name     string
	Parent   string
	MimeType string
	Content  string
	Modified time.Time
}

// fakeDrive serves the subset of the Drive v3 REST API the adapter uses
type fakeDrive struct {
	mu       sync.Mutex
	files    map[string]*fakeFile
	nextID   int
	requests int
}

var (
	childQuery = regexp.MustCompile(`^'((?:[^'\\]|\\.)*)' in parents and trashed = false$`)
	nameQuery  = regexp.MustCompile(`^name = '((?:[^'\\]|\\.)*)' and '((?:[^'\\]|\\.)*)' in parents and trashed = false$`)
)

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		files: map[string]*fakeFile{
			"root": {ID: "root", Name: "My Drive", MimeType: MimeTypeFolder, Modified: time.Unix(0, 0).UTC()},
		},
	}
}

// add creates path under the Drive root. A trailing slash makes a folder.
// Missing parent folders are created.
func (d *fakeDrive) add(p, content string, mod time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	isDir := strings.HasSuffix(p, "/")
	parts := strings.Split(strings.Trim(p, "/"), "/")
	parent := "root"
	for i, part := range parts {
		last := i == len(parts)-1
		if id := d.childLocked(parent, part); id != "" && !(last && !isDir) {
			parent = id
			continue
		}
		d.nextID++
		f := &fakeFile{
			ID:       fmt.Sprintf("id-%d", d.nextID),
			Name:     part,
			Parent:   parent,
			MimeType: MimeTypeFolder,
			Modified: mod,
		}
		if last && !isDir {
			f.MimeType = "text/plain"
			f.Content = content
		}
		d.files[f.ID] = f
		parent = f.ID
	}
}

func (d *fakeDrive) childLocked(parent, name string) string {
	for _, f := range d.files {
		if f.Parent == parent && f.Name == name {
			return f.ID
		}
	}
	return ""
}

func unescapeQuery(s string) string {
	return strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(s)
}

func (d *fakeDrive) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}

func (f *fakeFile) resource() map[string]any {
	r := map[string]any{
		"id":           f.ID,
		"name":         f.Name,
		"mimeType":     f.MimeType,
		"modifiedTime": f.Modified.Format(time.RFC3339),
	}
	if f.MimeType != MimeTypeFolder {
		r["size"] = strconv.Itoa(len(f.Content))
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error": map[string]any{
			"code":    404,
			"message": "File not found",
			"errors":  []map[string]any{{"reason": "notFound", "message": "File not found"}},
		},
	})
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++

	p := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case p == "files":
		d.list(w, r)
	case strings.HasPrefix(p, "files/"):
		f, ok := d.files[strings.TrimPrefix(p, "files/")]
		if !ok {
			notFound(w)
			return
		}
		if r.URL.Query().Get("alt") == "media" {
			w.Write([]byte(f.Content))
			return
		}
		writeJSON(w, http.StatusOK, f.resource())
	default:
		http.NotFound(w, r)
	}
}

func (d *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var parent, name string
	if m := nameQuery.FindStringSubmatch(q.Get("q")); m != nil {
		name, parent = unescapeQuery(m[1]), unescapeQuery(m[2])
	} else if m := childQuery.FindStringSubmatch(q.Get("q")); m != nil {
		parent = unescapeQuery(m[1])
	} else {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"code": 400, "message": "bad query " + q.Get("q")}})
		return
	}

	var matches []*fakeFile
	for _, f := range d.files {
		if f.Parent == parent && f.ID != "root" && (name == "" || f.Name == name) {
			matches = append(matches, f)
		}
	}
	// Stable pages
	sortFiles(matches)

	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 {
		pageSize = 100
	}
	offset, _ := strconv.Atoi(q.Get("pageToken"))
	end := offset + pageSize
	next := ""
	if end < len(matches) {
		next = strconv.Itoa(end)
	} else {
		end = len(matches)
	}

	resources := []map[string]any{}
	for _, f := range matches[offset:end] {
		resources = append(resources, f.resource())
	}
	resp := map[string]any{"files": resources}
	if next != "" {
		resp["nextPageToken"] = next
	}
	writeJSON(w, http.StatusOK, resp)
}

func sortFiles(files []*fakeFile) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].ID < files[j-1].ID; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}

// newFakeService starts a fake Drive and returns a service talking to it
func newFakeService(t *testing.T, d *fakeDrive) *drive.Service {
	t.Helper()

	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	service, err := drive.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("failed to create drive service: %v", err)
	}
	return service
}
