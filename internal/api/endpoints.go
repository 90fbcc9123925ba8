package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Endpoint roots relative to the API prefix.
const (
	VirtualizationRoot = "/virtualization"
	KubernetesRoot     = "/kubernetes"
	NetworkRoot        = "/network"
	SystemRoot         = "/system"
)

// VirtualizationPath joins elems under the virtualization root, escaping each.
func VirtualizationPath(elems ...string) string {
	return joinPath(VirtualizationRoot, elems...)
}

// KubernetesPath joins elems under the kubernetes root, escaping each.
func KubernetesPath(elems ...string) string {
	return joinPath(KubernetesRoot, elems...)
}

// NetworkPath joins elems under the host network root, escaping each.
func NetworkPath(elems ...string) string {
	return joinPath(NetworkRoot, elems...)
}

// SystemPath joins elems under the host system root, escaping each.
func SystemPath(elems ...string) string {
	return joinPath(SystemRoot, elems...)
}

func joinPath(root string, elems ...string) string {
	var b strings.Builder
	b.WriteString(root)
	for _, e := range elems {
		if e == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(e))
	}
	return b.String()
}

// WithQuery appends non-empty query values to path.
func WithQuery(path string, values url.Values) string {
	for k, vs := range values {
		if len(vs) == 0 || (len(vs) == 1 && vs[0] == "") {
			delete(values, k)
		}
	}
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}

// WebSocketURL returns the ws(s) URL for path with the token attached as a
// query parameter.
func (c *Client) WebSocketURL(path, token string) (*url.URL, error) {
	u, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// RootWebSocketURL is WebSocketURL for feeds served at the backend root
// rather than under the API prefix. No token is attached.
func (c *Client) RootWebSocketURL(path string) (*url.URL, error) {
	u := c.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath, u.RawQuery, u.Fragment = "", "", ""
	return c.WebSocketURL(u.String(), "")
}

// UploadRequest describes a file to upload through the resumable protocol.
type UploadRequest struct {
	Filename     string
	Size         int64
	OSType       string
	OSVariant    string
	Description  string
	Architecture string
}

// UploadSession identifies a created resumable upload.
type UploadSession struct {
	UploadURL string
	UploadID  string
}

// InitiateUpload creates a tus 1.0 upload session for an ISO image.
func (c *Client) InitiateUpload(ctx context.Context, up UploadRequest) (UploadSession, error) {
	if c == nil {
		return UploadSession{}, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(up.Filename) == "" {
		return UploadSession{}, fmt.Errorf("filename required")
	}
	if up.Size <= 0 {
		return UploadSession{}, fmt.Errorf("upload size must be positive")
	}

	header := http.Header{}
	header.Set("Upload-Length", fmt.Sprintf("%d", up.Size))
	header.Set("Upload-Metadata", encodeUploadMetadata(map[string]string{
		"filename":     up.Filename,
		"os_type":      up.OSType,
		"os_variant":   up.OSVariant,
		"description":  up.Description,
		"architecture": up.Architecture,
	}))
	header.Set("Tus-Resumable", TusVersion)

	resp, err := c.request(ctx, http.MethodPost, VirtualizationPath("isos", "upload"), nil, header)
	if err != nil {
		return UploadSession{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		UploadID  string `json:"upload_id"`
		UploadURL string `json:"upload_url"`
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err == nil {
		if payload, err := Unwrap(raw); err == nil {
			_ = json.Unmarshal(payload, &body)
		}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		location = body.UploadURL
	}
	if location == "" && body.UploadID != "" {
		location = c.prefix + VirtualizationPath("isos", "upload", body.UploadID)
	}
	if location == "" {
		return UploadSession{}, fmt.Errorf("upload session has no location")
	}
	abs, err := c.resolve(location)
	if err != nil {
		return UploadSession{}, err
	}
	id := body.UploadID
	if id == "" {
		id = abs.Path[strings.LastIndex(abs.Path, "/")+1:]
	}
	return UploadSession{UploadURL: abs.String(), UploadID: id}, nil
}

// CompleteUpload finalises an upload and returns the created ISO payload.
func (c *Client) CompleteUpload(ctx context.Context, uploadID string) (json.RawMessage, error) {
	raw, err := c.Send(ctx, http.MethodPost, VirtualizationPath("isos", "upload", uploadID, "complete"), nil)
	if err != nil {
		return nil, err
	}
	return Unwrap(raw)
}

// UploadProgress reports server-side progress for an upload.
type UploadProgress struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	Size       int64   `json:"size"`
	Uploaded   int64   `json:"uploaded"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// FetchUploadProgress reads server-side progress for uploadID.
func (c *Client) FetchUploadProgress(ctx context.Context, uploadID string) (UploadProgress, error) {
	var p UploadProgress
	if err := c.Do(ctx, http.MethodGet, VirtualizationPath("isos", "upload", uploadID, "progress"), nil, &p); err != nil {
		return UploadProgress{}, err
	}
	return p, nil
}

// encodeUploadMetadata renders the tus Upload-Metadata header: comma separated
// "key base64(value)" pairs, empty values omitted, keys sorted.
func encodeUploadMetadata(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k, v := range meta {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+" "+base64.StdEncoding.EncodeToString([]byte(meta[k])))
	}
	return strings.Join(pairs, ",")
}
