package virtualization

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/uistate"
	"github.com/five82/vapor-console/internal/upload"
)

// stepUploader reports progress in two steps, or blocks until aborted when
// block is set.
type stepUploader struct {
	block   bool
	started chan struct{}

	mu      sync.Mutex
	abort   chan struct{}
	session api.UploadSession
}

func newStepUploader(block bool) *stepUploader {
	return &stepUploader{block: block, started: make(chan struct{}, 4), abort: make(chan struct{})}
}

func (u *stepUploader) Upload(ctx context.Context, session api.UploadSession, _ io.ReaderAt, size int64, progress upload.ProgressFunc) error {
	u.mu.Lock()
	u.session = session
	abort := u.abort
	u.mu.Unlock()
	u.started <- struct{}{}
	if u.block {
		<-abort
		u.mu.Lock()
		u.abort = make(chan struct{})
		u.mu.Unlock()
		return upload.ErrAborted
	}
	progress(size/2, size)
	progress(size, size)
	return nil
}

func (u *stepUploader) Abort() {
	u.mu.Lock()
	defer u.mu.Unlock()
	select {
	case <-u.abort:
	default:
		close(u.abort)
	}
}

func uploadBackend(t *testing.T) (*backend, *api.Client) {
	b, client := newBackend(t)
	b.reply("POST /virtualization/isos/upload", http.StatusCreated, `{"upload_id":"up-1"}`)
	b.reply("POST /virtualization/isos/upload/up-1/complete", http.StatusOK,
		`{"status":"success","data":{"id":"iso-7","name":"alpine.iso","size":64}}`)
	return b, client
}

func isoFile() ISOUpload {
	data := bytes.Repeat([]byte{0xA5}, 64)
	return ISOUpload{Filename: "alpine.iso", Size: int64(len(data)), Reader: bytes.NewReader(data), OSType: "linux"}
}

func TestUploadISORegistersImage(t *testing.T) {
	b, client := uploadBackend(t)
	ui := uistate.New(uistate.Options{})
	defer ui.Close()
	up := newStepUploader(false)
	svc := New(Options{Client: client, Uploader: up, UI: ui})
	defer svc.Close()

	var progress []float64
	unsub := svc.UploadState().Subscribe(func(s UploadState) { progress = append(progress, s.Progress) })
	defer unsub()

	iso, err := svc.UploadISO(context.Background(), isoFile())
	if err != nil {
		t.Fatalf("UploadISO: %v", err)
	}
	if iso.ID != "iso-7" || !svc.ISOs().Exists("iso-7") {
		t.Fatalf("iso = %+v", iso)
	}
	if up.session.UploadID != "up-1" {
		t.Fatalf("session = %+v", up.session)
	}
	st := svc.UploadState().Get()
	if st.Uploading || st.Progress != 100 || st.Err != "" {
		t.Fatalf("final state = %+v", st)
	}
	seen50 := false
	for _, p := range progress {
		seen50 = seen50 || p == 50
	}
	if !seen50 {
		t.Fatalf("progress updates = %v, want a 50%% step", progress)
	}
	if b.count("POST /virtualization/isos/upload/up-1/complete") != 1 {
		t.Fatalf("complete not called once")
	}
}

func TestUploadISOInitiateFailure(t *testing.T) {
	b, client := newBackend(t)
	b.reply("POST /virtualization/isos/upload", http.StatusInsufficientStorage, `{"message":"pool full"}`)
	ui := uistate.New(uistate.Options{})
	defer ui.Close()
	svc := New(Options{Client: client, Uploader: newStepUploader(false), UI: ui})
	defer svc.Close()

	if _, err := svc.UploadISO(context.Background(), isoFile()); err == nil {
		t.Fatalf("UploadISO succeeded")
	}
	st := svc.UploadState().Get()
	if st.Uploading || st.Err == "" {
		t.Fatalf("state = %+v", st)
	}
	if len(ui.Notifications().Get()) != 1 {
		t.Fatalf("no error notification")
	}
	// A failed upload does not block the next one.
	b.reply("POST /virtualization/isos/upload", http.StatusCreated, `{"upload_id":"up-1"}`)
	b.reply("POST /virtualization/isos/upload/up-1/complete", http.StatusOK, `{"status":"success"}`)
	if _, err := svc.UploadISO(context.Background(), isoFile()); err != nil {
		t.Fatalf("second UploadISO: %v", err)
	}
}

func TestPauseResumeCancelUpload(t *testing.T) {
	_, client := uploadBackend(t)
	up := newStepUploader(true)
	svc := New(Options{Client: client, Uploader: up})
	defer svc.Close()

	errc := make(chan error, 1)
	go func() {
		_, err := svc.UploadISO(context.Background(), isoFile())
		errc <- err
	}()
	<-up.started
	svc.PauseUpload()
	if err := <-errc; !errors.Is(err, upload.ErrAborted) {
		t.Fatalf("paused upload err = %v, want ErrAborted", err)
	}
	if st := svc.UploadState().Get(); !st.Paused || st.Uploading || st.UploadID != "up-1" {
		t.Fatalf("paused state = %+v", st)
	}

	go func() {
		_, err := svc.ResumeUpload(context.Background())
		errc <- err
	}()
	<-up.started
	svc.CancelUpload()
	if err := <-errc; !errors.Is(err, upload.ErrAborted) {
		t.Fatalf("canceled upload err = %v, want ErrAborted", err)
	}
	if st := svc.UploadState().Get(); st != (UploadState{}) {
		t.Fatalf("state after cancel = %+v", st)
	}
	if _, err := svc.ResumeUpload(context.Background()); err == nil {
		t.Fatalf("ResumeUpload after cancel succeeded")
	}
}

func TestDeleteISO(t *testing.T) {
	b, client := newBackend(t)
	b.reply("DELETE /virtualization/storages/isos/iso-1", http.StatusNoContent, ``)
	svc := New(Options{Client: client})
	defer svc.Close()
	svc.ISOs().Replace([]ISOImage{{ID: "iso-1", Name: "a.iso"}, {ID: "iso-2", Name: "b.iso"}})

	if err := svc.DeleteISO(context.Background(), "iso-1"); err != nil {
		t.Fatalf("DeleteISO: %v", err)
	}
	if svc.ISOs().Exists("iso-1") || !svc.ISOs().Exists("iso-2") {
		t.Fatalf("keys = %v", svc.ISOs().Items().Get().Keys())
	}
}
