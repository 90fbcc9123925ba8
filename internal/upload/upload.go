package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	tus "github.com/eventials/go-tus"
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
)

// DefaultChunkSize matches the chunk size the backend is tuned for.
const DefaultChunkSize int64 = 5 << 20

// ErrAborted is returned by Upload after Abort stops it.
var ErrAborted = errors.New("upload aborted")

// ProgressFunc receives the bytes acknowledged by the server so far.
type ProgressFunc func(sent, total int64)

// Uploader sends size bytes from r to the session's upload URL.
type Uploader interface {
	Upload(ctx context.Context, session api.UploadSession, r io.ReaderAt, size int64, progress ProgressFunc) error
	Abort()
}

// Endpoint is the part of *api.Client an upload needs to reach the backend
// with the console's credentials.
type Endpoint interface {
	ResolveURL(path string) (string, error)
	Header() http.Header
	HTTPClient() *http.Client
}

var _ Endpoint = (*api.Client)(nil)

// Tus uploads through a tus client, resuming from the offset the server
// reports for the session. One Tus runs one upload at a time.
type Tus struct {
	endpoint  Endpoint
	chunkSize int64

	mu      sync.Mutex
	running bool
	aborted bool
}

var _ Uploader = (*Tus)(nil)

// NewTus returns a Tus uploader. chunkSize <= 0 uses DefaultChunkSize.
func NewTus(endpoint Endpoint, chunkSize int64) *Tus {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Tus{endpoint: endpoint, chunkSize: chunkSize}
}

// Upload implements Uploader.
func (t *Tus) Upload(ctx context.Context, session api.UploadSession, r io.ReaderAt, size int64, progress ProgressFunc) error {
	if session.UploadURL == "" {
		return fmt.Errorf("upload url required")
	}
	if size <= 0 {
		return fmt.Errorf("upload size must be positive")
	}
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("upload already in progress")
	}
	t.running = true
	t.aborted = false
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	uploader, err := t.resume(session, r, size)
	if err != nil {
		return err
	}
	if uploader.Offset() > size {
		return fmt.Errorf("server offset %d exceeds size %d", uploader.Offset(), size)
	}
	report(progress, uploader.Offset(), size)

	for uploader.Offset() < size {
		if t.isAborted() {
			uploader.Abort()
			return ErrAborted
		}
		if err := ctx.Err(); err != nil {
			uploader.Abort()
			return err
		}
		before := uploader.Offset()
		if err := uploader.UploadChunck(); err != nil {
			return fmt.Errorf("upload chunk at %d: %w", before, err)
		}
		if uploader.Offset() <= before {
			return fmt.Errorf("server did not advance offset past %d", before)
		}
		report(progress, uploader.Offset(), size)
	}
	klog.V(1).InfoS("Upload finished", "id", session.UploadID, "bytes", size)
	return nil
}

// resume opens the session's upload URL and asks the server for its offset.
// The backend created the upload already, so the tus store is seeded with
// the session instead of posting a new one.
func (t *Tus) resume(session api.UploadSession, r io.ReaderAt, size int64) (*tus.Uploader, error) {
	target, err := t.endpoint.ResolveURL(session.UploadURL)
	if err != nil {
		return nil, err
	}
	fingerprint := session.UploadID
	if fingerprint == "" {
		fingerprint = target
	}
	client, err := tus.NewClient(target, &tus.Config{
		ChunkSize:  t.chunkSize,
		Resume:     true,
		Store:      &sessionStore{fingerprint: fingerprint, url: target},
		Header:     t.endpoint.Header(),
		HttpClient: t.endpoint.HTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("tus client: %w", err)
	}
	up := tus.NewUpload(io.NewSectionReader(r, 0, size), size, tus.Metadata{}, fingerprint)
	uploader, err := client.ResumeUpload(up)
	if err != nil {
		return nil, fmt.Errorf("query upload offset: %w", err)
	}
	return uploader, nil
}

// Abort stops the running upload after the chunk in flight. The server keeps
// the received bytes, so a later Upload with the same session resumes.
func (t *Tus) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.aborted = true
	}
}

func (t *Tus) isAborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// sessionStore maps one upload fingerprint to the URL the backend issued.
type sessionStore struct {
	mu          sync.Mutex
	fingerprint string
	url         string
}

func (s *sessionStore) Get(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fingerprint != s.fingerprint || s.url == "" {
		return "", false
	}
	return s.url, true
}

func (s *sessionStore) Set(fingerprint, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint, s.url = fingerprint, url
}

func (s *sessionStore) Delete(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fingerprint == s.fingerprint {
		s.url = ""
	}
}

func (s *sessionStore) Close() {}

func report(progress ProgressFunc, sent, total int64) {
	if progress != nil {
		progress(sent, total)
	}
}
