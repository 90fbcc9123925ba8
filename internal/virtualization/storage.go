package virtualization

import (
	"context"
	"errors"
	"fmt"
	"io"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/state"
	"github.com/five82/vapor-console/internal/store"
	"github.com/five82/vapor-console/internal/upload"
)

// UploadState is the progress of the current ISO upload. Progress is a
// percentage.
type UploadState struct {
	Uploading bool
	Paused    bool
	Progress  float64
	UploadID  string
	Filename  string
	Err       string
}

// ISOUpload describes a local image to upload.
type ISOUpload struct {
	Filename     string
	Size         int64
	Reader       io.ReaderAt
	OSType       string
	OSVariant    string
	Description  string
	Architecture string
}

type pendingUpload struct {
	session  api.UploadSession
	file     ISOUpload
	canceled bool
}

// UploadState is the progress of the current ISO upload.
func (s *Service) UploadState() state.Readable[UploadState] { return s.uploadState }

// FetchPools reloads the storage pools.
func (s *Service) FetchPools(ctx context.Context) error { return s.pools.Refresh(ctx) }

// FetchISOs reloads the ISO images.
func (s *Service) FetchISOs(ctx context.Context) error { return s.isos.Refresh(ctx) }

// FetchTemplates reloads the VM templates.
func (s *Service) FetchTemplates(ctx context.Context) error { return s.templates.Refresh(ctx) }

// FetchNetworks reloads the virtual networks.
func (s *Service) FetchNetworks(ctx context.Context) error { return s.networks.Refresh(ctx) }

// DeleteISO removes the image on the backend and locally.
func (s *Service) DeleteISO(ctx context.Context, id string) error {
	return s.isos.Delete(ctx, id)
}

// UploadISO creates an upload session, streams f through the uploader and
// registers the finished image. PauseUpload stops the transfer with the
// session kept for ResumeUpload.
func (s *Service) UploadISO(ctx context.Context, f ISOUpload) (ISOImage, error) {
	if s.client == nil || s.uploader == nil {
		return ISOImage{}, fmt.Errorf("no backend configured")
	}
	if f.Reader == nil {
		return ISOImage{}, fmt.Errorf("upload %s: no reader", f.Filename)
	}
	s.uploadMu.Lock()
	if s.pending != nil {
		s.uploadMu.Unlock()
		return ISOImage{}, fmt.Errorf("an upload is already in progress")
	}
	s.pending = &pendingUpload{file: f}
	s.uploadMu.Unlock()

	s.uploadState.Set(UploadState{Uploading: true, Filename: f.Filename})
	session, err := s.client.InitiateUpload(ctx, api.UploadRequest{
		Filename:     f.Filename,
		Size:         f.Size,
		OSType:       f.OSType,
		OSVariant:    f.OSVariant,
		Description:  f.Description,
		Architecture: f.Architecture,
	})
	if err != nil {
		s.finishUpload()
		return ISOImage{}, s.uploadFailed(f.Filename, fmt.Errorf("initiate upload: %w", err))
	}

	s.uploadMu.Lock()
	s.pending.session = session
	s.uploadMu.Unlock()
	s.uploadState.Update(func(cur UploadState) UploadState {
		cur.UploadID = session.UploadID
		return cur
	})
	return s.transfer(ctx)
}

// ResumeUpload continues a paused upload from the offset the server holds.
func (s *Service) ResumeUpload(ctx context.Context) (ISOImage, error) {
	s.uploadMu.Lock()
	p := s.pending
	s.uploadMu.Unlock()
	if p == nil || p.session.UploadURL == "" {
		return ISOImage{}, fmt.Errorf("no paused upload")
	}
	s.uploadState.Update(func(cur UploadState) UploadState {
		cur.Uploading, cur.Paused, cur.Err = true, false, ""
		return cur
	})
	return s.transfer(ctx)
}

func (s *Service) transfer(ctx context.Context) (ISOImage, error) {
	s.uploadMu.Lock()
	if s.pending == nil || s.pending.canceled {
		s.pending = nil
		s.uploadMu.Unlock()
		s.uploadState.Set(UploadState{})
		return ISOImage{}, upload.ErrAborted
	}
	p := *s.pending
	s.uploadMu.Unlock()

	err := s.uploader.Upload(ctx, p.session, p.file.Reader, p.file.Size, func(sent, total int64) {
		pct := float64(sent) / float64(total) * 100
		s.uploadState.Update(func(cur UploadState) UploadState {
			cur.Progress = pct
			return cur
		})
	})
	if errors.Is(err, upload.ErrAborted) {
		s.uploadMu.Lock()
		canceled := s.pending == nil || s.pending.canceled
		if canceled {
			s.pending = nil
		}
		s.uploadMu.Unlock()
		if canceled {
			s.uploadState.Set(UploadState{})
			klog.InfoS("ISO upload canceled", "file", p.file.Filename)
		} else {
			s.uploadState.Update(func(cur UploadState) UploadState {
				cur.Uploading, cur.Paused = false, true
				return cur
			})
			klog.InfoS("ISO upload paused", "file", p.file.Filename)
		}
		return ISOImage{}, err
	}
	if err != nil {
		s.finishUpload()
		return ISOImage{}, s.uploadFailed(p.file.Filename, err)
	}

	raw, err := s.client.CompleteUpload(ctx, p.session.UploadID)
	s.finishUpload()
	if err != nil {
		return ISOImage{}, s.uploadFailed(p.file.Filename, fmt.Errorf("complete upload: %w", err))
	}
	var iso ISOImage
	if err := decodeInto(raw, &iso); err != nil || iso.ID == "" {
		// Status-only reply; the next fetch lists the image.
		klog.V(1).InfoS("Upload completed without an image payload", "file", p.file.Filename)
	} else {
		s.isos.Upsert(iso)
	}
	s.uploadState.Set(UploadState{Progress: 100, UploadID: p.session.UploadID, Filename: p.file.Filename})
	if s.ui != nil {
		s.ui.Success("ISO uploaded", p.file.Filename)
	}
	return iso, nil
}

// PauseUpload stops the running transfer. The session is kept.
func (s *Service) PauseUpload() {
	if s.uploader != nil {
		s.uploader.Abort()
	}
}

// CancelUpload stops the transfer and forgets the session.
func (s *Service) CancelUpload() {
	s.uploadMu.Lock()
	p := s.pending
	if p != nil {
		p.canceled = true
	}
	running := p != nil && s.uploadState.Get().Uploading
	if !running {
		s.pending = nil
	}
	s.uploadMu.Unlock()
	if running && s.uploader != nil {
		s.uploader.Abort()
		return
	}
	if p != nil {
		s.uploadState.Set(UploadState{})
	}
}

func (s *Service) finishUpload() {
	s.uploadMu.Lock()
	s.pending = nil
	s.uploadMu.Unlock()
}

func (s *Service) uploadFailed(filename string, err error) error {
	se := s.isos.Fail(store.CodeCreate, "upload", err)
	s.uploadState.Update(func(cur UploadState) UploadState {
		cur.Uploading, cur.Paused, cur.Err = false, false, se.Message
		return cur
	})
	if s.ui != nil {
		s.ui.Error("ISO upload failed", fmt.Sprintf("%s: %s", filename, se.Message))
	}
	return se
}
