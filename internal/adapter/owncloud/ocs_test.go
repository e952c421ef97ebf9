package owncloud

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
)

const shareCreatedXML = `<?xml version="1.0"?>
<ocs>
 <meta>
  <status>ok</status>
  <statuscode>100</statuscode>
  <message/>
 </meta>
 <data>
  <id>207</id>
  <share_type>0</share_type>
  <uid_owner>user1</uid_owner>
  <displayname_owner>user1</displayname_owner>
  <permissions>19</permissions>
  <stime>1511532198</stime>
  <parent/>
  <expiration/>
  <token/>
  <uid_file_owner>user1</uid_file_owner>
  <displayname_file_owner>user1</displayname_file_owner>
  <path>/ambient.txt</path>
  <item_type>file</item_type>
  <mimetype>text/plain</mimetype>
  <storage_id>home::user1</storage_id>
  <storage>3</storage>
  <item_source>545</item_source>
  <file_source>545</file_source>
  <file_parent>20</file_parent>
  <file_target>/ambient.txt</file_target>
  <share_with>tech</share_with>
  <share_with_displayname>tech</share_with_displayname>
  <mail_send>0</mail_send>
 </data>
</ocs>
`

const shareFailedXML = `<?xml version="1.0"?>
<ocs>
 <meta>
  <status>failure</status>
  <statuscode>404</statuscode>
  <message>Wrong path, file/folder doesn't exist</message>
 </meta>
 <data/>
</ocs>
`

// ocsServer answers every request with a fixed status and body and records the last form
type ocsServer struct {
	status int
	body   string
	method string
	path   string
	header http.Header
	form   url.Values
}

func (o *ocsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.method = r.Method
	o.path = r.URL.Path
	o.header = r.Header.Clone()
	raw, _ := io.ReadAll(r.Body)
	o.form, _ = url.ParseQuery(string(raw))
	w.Header().Set("Content-Type", "text/xml; charset=UTF-8")
	w.WriteHeader(o.status)
	io.WriteString(w, o.body)
}

func TestShareClient_CreateShare(t *testing.T) {
	ocs := &ocsServer{status: http.StatusOK, body: shareCreatedXML}
	srv := httptest.NewServer(ocs)
	defer srv.Close()

	shares := newTestConnector(t, srv).Shares(&fakeClient{token: "sys"})

	expiration := time.Now().Add(604800 * time.Second)
	req := domain.ShareRequest{
		Path:         vo.NewRemotePath("/ambient.txt"),
		ShareType:    domain.ShareTypeUser,
		PublicUpload: false,
		Expiration:   expiration,
		ShareWith:    "user1",
	}

	got, err := shares.CreateShare(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}

	want := domain.ShareResult{StatusCode: 100, ShareID: "207", FileID: "545", FileTarget: "/ambient.txt"}
	if *got != want {
		t.Errorf("CreateShare() = %+v, want %+v", *got, want)
	}
	if !got.Created() {
		t.Error("Created() = false, want true")
	}

	if ocs.method != http.MethodPost {
		t.Errorf("method = %s, want POST", ocs.method)
	}
	if ocs.path != "/ocs/v1.php/apps/files_sharing/api/v1/shares" {
		t.Errorf("path = %s", ocs.path)
	}
	if ocs.header.Get("OCS-APIRequest") != "true" {
		t.Error("OCS-APIRequest header not set")
	}
	if ocs.header.Get("Authorization") != "Bearer sys" {
		t.Errorf("Authorization = %q", ocs.header.Get("Authorization"))
	}

	wantForm := map[string]string{
		"path":         "/ambient.txt",
		"shareType":    "0",
		"publicUpload": "false",
		"shareWith":    "user1",
		"expiration":   strconv.FormatInt(expiration.Unix(), 10),
	}
	for k, v := range wantForm {
		if got := ocs.form.Get(k); got != v {
			t.Errorf("form[%s] = %q, want %q", k, got, v)
		}
	}
}

func TestShareClient_CreateShare_StatusCodeIsNotAnError(t *testing.T) {
	ocs := &ocsServer{status: http.StatusOK, body: shareFailedXML}
	srv := httptest.NewServer(ocs)
	defer srv.Close()

	shares := newTestConnector(t, srv).Shares(&fakeClient{token: "sys"})
	got, err := shares.CreateShare(context.Background(), domain.ShareRequest{Path: vo.NewRemotePath("/missing.txt")})
	if err != nil {
		t.Fatalf("CreateShare() error = %v", err)
	}
	if got.StatusCode != 404 {
		t.Errorf("StatusCode = %d, want 404", got.StatusCode)
	}
	if got.Created() {
		t.Error("Created() = true, want false")
	}
}

func TestShareClient_CreateShare_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantParse bool
		wantReq   bool
	}{
		{name: "html instead of xml", status: http.StatusOK, body: "<html><body>login</body></html>", wantParse: true},
		{name: "garbage", status: http.StatusOK, body: "not xml at all", wantParse: true},
		{name: "envelope without meta", status: http.StatusOK, body: "<ocs><data/></ocs>", wantParse: true},
		{name: "unauthorized without envelope", status: http.StatusUnauthorized, body: "", wantReq: true},
		{name: "server error without envelope", status: http.StatusInternalServerError, body: "oops", wantReq: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(&ocsServer{status: tt.status, body: tt.body})
			defer srv.Close()

			shares := newTestConnector(t, srv).Shares(&fakeClient{token: "sys"})
			_, err := shares.CreateShare(context.Background(), domain.ShareRequest{Path: vo.NewRemotePath("/a.txt")})
			if err == nil {
				t.Fatal("CreateShare() error = nil")
			}
			if IsParseError(err) != tt.wantParse {
				t.Errorf("IsParseError(%v) = %v, want %v", err, IsParseError(err), tt.wantParse)
			}
			if IsRequestError(err) != tt.wantReq {
				t.Errorf("IsRequestError(%v) = %v, want %v", err, IsRequestError(err), tt.wantReq)
			}
		})
	}
}

func TestShareClient_DeleteShare(t *testing.T) {
	ocs := &ocsServer{status: http.StatusOK, body: `<?xml version="1.0"?><ocs><meta><status>ok</status><statuscode>100</statuscode><message/></meta><data/></ocs>`}
	srv := httptest.NewServer(ocs)
	defer srv.Close()

	shares := newTestConnector(t, srv).Shares(&fakeClient{token: "sys"})
	if err := shares.DeleteShare(context.Background(), "207"); err != nil {
		t.Fatalf("DeleteShare() error = %v", err)
	}
	if ocs.method != http.MethodDelete || ocs.path != "/ocs/v1.php/apps/files_sharing/api/v1/shares/207" {
		t.Errorf("request = %s %s", ocs.method, ocs.path)
	}

	ocs.body = shareFailedXML
	if err := shares.DeleteShare(context.Background(), "207"); err == nil {
		t.Error("DeleteShare() with status 404 error = nil")
	}
}

func TestEncodeShareRequest_NoExpiration(t *testing.T) {
	v := EncodeShareRequest(domain.ShareRequest{Path: vo.NewRemotePath("/x"), ShareWith: "u"})
	if v.Has("expiration") || v.Has("expireDate") {
		t.Errorf("expiration fields set for zero time: %v", v)
	}
}
