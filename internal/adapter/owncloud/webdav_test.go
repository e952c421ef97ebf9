package owncloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
	"github.com/vertextoedge/owncloud-controlled-link/internal/service/folder"
	"go.uber.org/zap"
)

const testWebDAVPrefix = "/remote.php/webdav"

// fakeClient is a port.AuthenticatedClient that injects a bearer header
type fakeClient struct {
	identity domain.Identity
	token    string
}

func (f *fakeClient) Identity() domain.Identity { return f.identity }
func (f *fakeClient) Transport() http.RoundTripper {
	return bearerTransport{token: f.token, base: http.DefaultTransport}
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(r)
}

// davServer is a minimal WebDAV server keeping a set of collections and
// files. COPY and MOVE never overwrite, like a real server given
// "Overwrite: F".
type davServer struct {
	mu          sync.Mutex
	collections map[string]bool
	files       map[string]bool
	mkcolStatus int
	requests    []string
	auth        []string
}

func newDAVServer(existing ...string) *davServer {
	d := &davServer{
		collections: make(map[string]bool),
		files:       make(map[string]bool),
		mkcolStatus: http.StatusCreated,
	}
	for _, p := range existing {
		d.collections[p] = true
	}
	return d
}

func (d *davServer) hasFile(p string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[p]
}

func (d *davServer) count(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if strings.HasPrefix(r, method+" ") {
			n++
		}
	}
	return n
}

func (d *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := strings.TrimSuffix(r.URL.Path, "/")
	d.requests = append(d.requests, r.Method+" "+p)
	d.auth = append(d.auth, r.Header.Get("Authorization"))

	switch r.Method {
	case "PROPFIND":
		if !d.collections[p] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:">
 <d:response>
  <d:href>%s/</d:href>
  <d:propstat>
   <d:prop>
    <d:resourcetype><d:collection/></d:resourcetype>
    <d:getlastmodified>Fri, 24 Nov 2017 14:03:18 GMT</d:getlastmodified>
   </d:prop>
   <d:status>HTTP/1.1 200 OK</d:status>
  </d:propstat>
 </d:response>
</d:multistatus>`, p)
	case "MKCOL":
		if d.collections[p] {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if d.mkcolStatus == http.StatusCreated {
			d.collections[p] = true
		}
		w.WriteHeader(d.mkcolStatus)
	case "COPY", "MOVE":
		dst, err := url.Parse(r.Header.Get("Destination"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		target := strings.TrimSuffix(dst.Path, "/")
		switch {
		case !d.files[p]:
			w.WriteHeader(http.StatusNotFound)
		case d.files[target] && r.Header.Get("Overwrite") == "F":
			w.WriteHeader(http.StatusPreconditionFailed)
		default:
			d.files[target] = true
			if r.Method == "MOVE" {
				delete(d.files, p)
			}
			w.WriteHeader(http.StatusCreated)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestConnector(t *testing.T, srv *httptest.Server) *Connector {
	t.Helper()
	issuer := &domain.Issuer{
		Name:      "owncloud",
		WebDAVURL: srv.URL + testWebDAVPrefix + "/",
		OCSURL:    srv.URL + "/ocs/v1.php",
	}
	return NewConnector(issuer, 5*time.Second, zap.NewNop())
}

func TestWebDAVStore_IsDir(t *testing.T) {
	dav := newDAVServer(testWebDAVPrefix + "/somename")
	srv := httptest.NewServer(dav)
	defer srv.Close()

	store := newTestConnector(t, srv).Store(&fakeClient{identity: domain.Identity{Kind: domain.IdentitySystem}, token: "sys"})

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "existing collection", path: "/somename", want: true},
		{name: "missing collection", path: "/somename/mod_resource", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.IsDir(context.Background(), vo.NewRemotePath(tt.path))
			if err != nil {
				t.Fatalf("IsDir() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsDir() = %v, want %v", got, tt.want)
			}
		})
	}

	// One PROPFIND per call, rooted at the WebDAV prefix, with the bearer token
	if got := dav.count("PROPFIND"); got != len(tests) {
		t.Errorf("PROPFIND requests = %d, want %d", got, len(tests))
	}
	for i, req := range dav.requests {
		if !strings.HasPrefix(req, "PROPFIND "+testWebDAVPrefix+"/somename") {
			t.Errorf("request %d = %q, want PROPFIND under the webdav prefix", i, req)
		}
		if dav.auth[i] != "Bearer sys" {
			t.Errorf("request %d Authorization = %q, want %q", i, dav.auth[i], "Bearer sys")
		}
	}
}

func TestWebDAVStore_MakeCollection(t *testing.T) {
	tests := []struct {
		name        string
		existing    []string
		mkcolStatus int
		want        domain.CollectionStatus
		wantErr     bool
	}{
		{
			name:        "created",
			mkcolStatus: http.StatusCreated,
			want:        domain.CollectionCreated,
		},
		{
			name:        "already exists is success",
			existing:    []string{testWebDAVPrefix + "/Moodlefiles"},
			mkcolStatus: http.StatusCreated,
			want:        domain.CollectionExists,
		},
		{
			name:        "forbidden is refused",
			mkcolStatus: http.StatusForbidden,
			want:        domain.CollectionRefused,
		},
		{
			name:        "bad request is refused",
			mkcolStatus: http.StatusBadRequest,
			want:        domain.CollectionRefused,
		},
		{
			name:        "insufficient storage is refused",
			mkcolStatus: http.StatusInsufficientStorage,
			want:        domain.CollectionRefused,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dav := newDAVServer(tt.existing...)
			dav.mkcolStatus = tt.mkcolStatus
			srv := httptest.NewServer(dav)
			defer srv.Close()

			store := newTestConnector(t, srv).Store(&fakeClient{token: "sys"})
			got, err := store.MakeCollection(context.Background(), vo.NewRemotePath("/Moodlefiles"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("MakeCollection() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("MakeCollection() = %v, want %v", got, tt.want)
			}
			if n := dav.count("MKCOL"); n != 1 {
				t.Errorf("MKCOL requests = %d, want 1", n)
			}
		})
	}
}

func TestWebDAVStore_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(newDAVServer())
	srv.Close() // nothing listens anymore

	store := newTestConnector(t, srv).Store(&fakeClient{token: "sys"})

	if _, err := store.IsDir(context.Background(), vo.NewRemotePath("/a")); !IsRequestError(err) {
		t.Errorf("IsDir() error = %v, want RequestError", err)
	}
	if _, err := store.MakeCollection(context.Background(), vo.NewRemotePath("/a")); !IsRequestError(err) {
		t.Errorf("MakeCollection() error = %v, want RequestError", err)
	}
}

func TestWebDAVStore_CanceledContext(t *testing.T) {
	dav := newDAVServer()
	srv := httptest.NewServer(dav)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newTestConnector(t, srv).Store(&fakeClient{token: "sys"})
	_, err := store.IsDir(ctx, vo.NewRemotePath("/a"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("IsDir() error = %v, want context.Canceled", err)
	}
	if len(dav.requests) != 0 {
		t.Errorf("requests = %v, want none", dav.requests)
	}
}

func TestWebDAVStore_Transfer(t *testing.T) {
	tests := []struct {
		name     string
		move     bool
		wantLeft bool
	}{
		{name: "copy keeps the source", move: false, wantLeft: true},
		{name: "move removes the source", move: true, wantLeft: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dav := newDAVServer()
			dav.files[testWebDAVPrefix+"/ambient.txt"] = true
			srv := httptest.NewServer(dav)
			defer srv.Close()

			store := newTestConnector(t, srv).Store(&fakeClient{token: "sys"})
			src := vo.NewRemotePath("/ambient.txt")
			dst := vo.NewRemotePath("/Moodlefiles/ambient.txt")

			method := "COPY"
			transfer := store.Copy
			if tt.move {
				method = "MOVE"
				transfer = store.Move
			}

			if err := transfer(context.Background(), src, dst); err != nil {
				t.Fatalf("%s error = %v", method, err)
			}
			if n := dav.count(method); n != 1 {
				t.Errorf("%s requests = %d, want 1", method, n)
			}
			if dav.requests[0] != method+" "+testWebDAVPrefix+"/ambient.txt" {
				t.Errorf("requests = %v, want %s of the source", dav.requests, method)
			}
			if !dav.hasFile(testWebDAVPrefix + "/Moodlefiles/ambient.txt") {
				t.Error("target does not exist after transfer")
			}
			if dav.hasFile(testWebDAVPrefix+"/ambient.txt") != tt.wantLeft {
				t.Errorf("source exists = %v, want %v", !tt.wantLeft, tt.wantLeft)
			}
		})
	}
}

func TestWebDAVStore_CopyExistingTargetIsRefused(t *testing.T) {
	dav := newDAVServer()
	dav.files[testWebDAVPrefix+"/ambient.txt"] = true
	dav.files[testWebDAVPrefix+"/Moodlefiles/ambient.txt"] = true
	srv := httptest.NewServer(dav)
	defer srv.Close()

	store := newTestConnector(t, srv).Store(&fakeClient{token: "sys"})
	err := store.Copy(context.Background(), vo.NewRemotePath("/ambient.txt"), vo.NewRemotePath("/Moodlefiles/ambient.txt"))
	if !errors.Is(err, domain.ErrTransferRefused) {
		t.Errorf("Copy() error = %v, want ErrTransferRefused", err)
	}
	if n := dav.count("COPY"); n != 1 {
		t.Errorf("COPY requests = %d, want 1", n)
	}
}

func TestWebDAVStore_EnsureOneRequestPerStep(t *testing.T) {
	dav := newDAVServer()
	srv := httptest.NewServer(dav)
	defer srv.Close()

	store := newTestConnector(t, srv).Store(&fakeClient{token: "sys"})
	ensurer := folder.NewEnsurer(folder.DefaultConfig(), nil, zap.NewNop())
	segments := []string{"somename", "mod_resource", "content", "0"}

	res, err := ensurer.Ensure(context.Background(), vo.NewRemotePath("/Moodlefiles"), segments, store)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !res.Success || res.FullPath.String() != "/Moodlefiles/somename/mod_resource/content/0" {
		t.Errorf("Ensure() = %+v", res)
	}
	if n := dav.count("PROPFIND"); n != 5 {
		t.Errorf("PROPFIND requests = %d, want 5", n)
	}
	if n := dav.count("MKCOL"); n != 5 {
		t.Errorf("MKCOL requests = %d, want 5", n)
	}

	// Everything exists now: only checks go out
	if _, err := ensurer.Ensure(context.Background(), vo.NewRemotePath("/Moodlefiles"), segments, store); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if n := dav.count("PROPFIND"); n != 10 {
		t.Errorf("PROPFIND requests = %d, want 10", n)
	}
	if n := dav.count("MKCOL"); n != 5 {
		t.Errorf("MKCOL requests = %d, want 5", n)
	}
}
