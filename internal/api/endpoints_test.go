package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestPathHelpers(t *testing.T) {
	if got := VirtualizationPath("virtualmachines", "a b", "start"); got != "/virtualization/virtualmachines/a%20b/start" {
		t.Fatalf("VirtualizationPath = %q", got)
	}
	if got := KubernetesPath("pods"); got != "/kubernetes/pods" {
		t.Fatalf("KubernetesPath = %q", got)
	}
	if got := NetworkPath("interfaces", "eth0", "up"); got != "/network/interfaces/eth0/up" {
		t.Fatalf("NetworkPath = %q", got)
	}
	if got := SystemPath("summary"); got != "/system/summary" {
		t.Fatalf("SystemPath = %q", got)
	}
	if got := WithQuery("/kubernetes/pods", url.Values{"namespace": {""}}); got != "/kubernetes/pods" {
		t.Fatalf("WithQuery empty = %q, want no query", got)
	}
	if got := WithQuery("/kubernetes/pods", url.Values{"namespace": {"kube-system"}}); got != "/kubernetes/pods?namespace=kube-system" {
		t.Fatalf("WithQuery = %q", got)
	}
}

func TestWebSocketURL(t *testing.T) {
	c, err := NewClient("https://vapor.example.com", Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	u, err := c.WebSocketURL("/ws/virtualization/vms", "tok")
	if err != nil {
		t.Fatalf("WebSocketURL returned error: %v", err)
	}
	if u.String() != "wss://vapor.example.com/api/v1/ws/virtualization/vms?token=tok" {
		t.Fatalf("WebSocketURL = %q", u.String())
	}
}

func TestRootWebSocketURL(t *testing.T) {
	for _, base := range []string{"http://vapor.lan:8080", "http://vapor.lan:8080/"} {
		c, err := NewClient(base, Options{})
		if err != nil {
			t.Fatalf("NewClient returned error: %v", err)
		}
		u, err := c.RootWebSocketURL("/ws/metrics")
		if err != nil {
			t.Fatalf("RootWebSocketURL returned error: %v", err)
		}
		if u.String() != "ws://vapor.lan:8080/ws/metrics" {
			t.Fatalf("RootWebSocketURL(%s) = %q", base, u.String())
		}
	}
}

func TestEncodeUploadMetadata(t *testing.T) {
	got := encodeUploadMetadata(map[string]string{"filename": "a.iso", "os_type": "", "description": "x"})
	want := "description " + base64.StdEncoding.EncodeToString([]byte("x")) +
		",filename " + base64.StdEncoding.EncodeToString([]byte("a.iso"))
	if got != want {
		t.Fatalf("encodeUploadMetadata = %q, want %q", got, want)
	}
}

func TestInitiateAndCompleteUpload(t *testing.T) {
	t.Parallel()

	var gotLength, gotResumable, gotMeta string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/virtualization/isos/upload":
			gotLength = r.Header.Get("Upload-Length")
			gotResumable = r.Header.Get("Tus-Resumable")
			gotMeta = r.Header.Get("Upload-Metadata")
			w.Header().Set("Location", "/api/v1/virtualization/isos/upload/up-1")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"upload_id":"up-1"}`))
		case strings.HasSuffix(r.URL.Path, "/complete"):
			_, _ = w.Write([]byte(`{"status":"success","data":{"id":"iso-1","name":"a.iso"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	session, err := c.InitiateUpload(ctx, UploadRequest{Filename: "a.iso", Size: 4})
	if err != nil {
		t.Fatalf("InitiateUpload returned error: %v", err)
	}
	if session.UploadID != "up-1" || session.UploadURL != server.URL+"/api/v1/virtualization/isos/upload/up-1" {
		t.Fatalf("session = %#v", session)
	}
	if gotLength != "4" || gotResumable != TusVersion || !strings.HasPrefix(gotMeta, "filename ") {
		t.Fatalf("headers length=%q resumable=%q meta=%q", gotLength, gotResumable, gotMeta)
	}

	raw, err := c.CompleteUpload(ctx, session.UploadID)
	if err != nil {
		t.Fatalf("CompleteUpload returned error: %v", err)
	}
	if !strings.Contains(string(raw), `"iso-1"`) {
		t.Fatalf("CompleteUpload = %s, want unwrapped ISO", raw)
	}
}

func TestInitiateUpload_Validates(t *testing.T) {
	c, err := NewClient("127.0.0.1:1", Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.InitiateUpload(context.Background(), UploadRequest{Size: 1}); err == nil {
		t.Fatal("InitiateUpload without filename returned nil error")
	}
	if _, err := c.InitiateUpload(context.Background(), UploadRequest{Filename: "a"}); err == nil {
		t.Fatal("InitiateUpload without size returned nil error")
	}
}

func TestUploadRequestParts(t *testing.T) {
	c, err := NewClient("https://vapor.lan", Options{Tokens: TokenFunc(func() string { return "tok" })})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	got, err := c.ResolveURL("/virtualization/isos/upload/up-1")
	if err != nil || got != "https://vapor.lan/api/v1/virtualization/isos/upload/up-1" {
		t.Fatalf("ResolveURL = %q, %v", got, err)
	}
	if abs, _ := c.ResolveURL("https://files.lan/u/1"); abs != "https://files.lan/u/1" {
		t.Fatalf("ResolveURL(absolute) = %q", abs)
	}
	h := c.Header()
	if h.Get("Authorization") != "Bearer tok" || h.Get("User-Agent") == "" {
		t.Fatalf("Header = %v", h)
	}
	if c.HTTPClient() == nil {
		t.Fatal("HTTPClient = nil")
	}
}
