package virtualization

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/state"
	"github.com/five82/vapor-console/internal/store"
)

// BackupFilter narrows the global backup listing.
type BackupFilter struct {
	Search string
	Status string
	Type   string
}

// BackupRequest is the body of a create-backup call.
type BackupRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Backups is the backup collection, keyed by backup id.
func (s *Service) Backups() *store.Collection[VMBackup] { return s.backups }

// BackupsByVM groups backups by owning VM; unknown owners share "unknown".
func (s *Service) BackupsByVM() state.Readable[map[string][]VMBackup] { return s.backupsByVM }

func backupKey(b VMBackup) string {
	if b.BackupID != "" {
		return b.BackupID
	}
	return b.ID
}

func backupOwner(b VMBackup) string {
	if b.VMUUID != "" {
		return b.VMUUID
	}
	return b.VMID
}

// normalizeBackup fills id/backup_id and vm_id/vm_uuid from each other.
func normalizeBackup(b VMBackup) VMBackup {
	if b.BackupID == "" {
		b.BackupID = b.ID
	}
	b.ID = b.BackupID
	if b.VMUUID == "" {
		b.VMUUID = b.VMID
	}
	if b.VMID == "" {
		b.VMID = b.VMUUID
	}
	return b
}

func groupBackups(backups store.Entries[VMBackup]) map[string][]VMBackup {
	out := map[string][]VMBackup{}
	for _, b := range backups.Values() {
		owner := backupOwner(b)
		if owner == "" {
			owner = "unknown"
		}
		out[owner] = append(out[owner], b)
	}
	return out
}

// mergeBackups upserts each backup by key.
func (s *Service) mergeBackups(list []VMBackup) {
	for _, b := range list {
		b = normalizeBackup(b)
		if backupKey(b) == "" {
			continue
		}
		s.backups.Upsert(b)
	}
}

// replaceBackupsForVM swaps every backup owned by vmID for list.
func (s *Service) replaceBackupsForVM(vmID string, list []VMBackup) {
	kept := []VMBackup{}
	for _, b := range s.backups.Items().Get().Values() {
		if backupOwner(b) != vmID {
			kept = append(kept, b)
		}
	}
	for _, b := range list {
		kept = append(kept, normalizeBackup(b))
	}
	s.backups.Replace(kept)
}

// FetchBackups merges the global backup listing into the collection.
func (s *Service) FetchBackups(ctx context.Context, f BackupFilter) error {
	q := url.Values{}
	q.Set("search", f.Search)
	q.Set("status", f.Status)
	q.Set("type", f.Type)
	list, err := s.listBackups(ctx, api.WithQuery(api.VirtualizationPath("backups"), q))
	if err != nil {
		return err
	}
	s.mergeBackups(list)
	return nil
}

// FetchVMBackups replaces the backups held for vmID with the backend's list.
func (s *Service) FetchVMBackups(ctx context.Context, vmID string) error {
	if vmID == "" {
		return nil
	}
	list, err := s.listBackups(ctx, api.VirtualizationPath("virtualmachines", vmID, "backups"))
	if err != nil {
		return err
	}
	s.replaceBackupsForVM(vmID, list)
	return nil
}

func (s *Service) listBackups(ctx context.Context, path string) ([]VMBackup, error) {
	done := s.backups.Busy()
	defer done()
	s.backups.ClearError()

	var raw json.RawMessage
	if err := s.call(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, s.backups.Fail(store.CodeFetch, "fetch", err)
	}
	if raw == nil {
		return nil, nil
	}
	res, err := api.DecodeList(raw, "backups")
	if err != nil {
		return nil, s.backups.Fail(store.CodeFetch, "fetch", err)
	}
	var out []VMBackup
	for _, item := range api.ItemsOf(res) {
		var b VMBackup
		if err := json.Unmarshal(item, &b); err != nil {
			klog.ErrorS(err, "Skipping malformed backup")
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// CreateBackup starts a backup of vmID and records it.
func (s *Service) CreateBackup(ctx context.Context, vmID string, req BackupRequest) (VMBackup, error) {
	s.backups.ClearError()
	var b VMBackup
	if err := s.call(ctx, http.MethodPost, api.VirtualizationPath("virtualmachines", vmID, "backups"), req, &b); err != nil {
		return VMBackup{}, s.backups.Fail(store.CodeCreate, "create", err)
	}
	if b.VMID == "" && b.VMUUID == "" {
		b.VMID = vmID
	}
	b = normalizeBackup(b)
	s.mergeBackups([]VMBackup{b})
	return b, nil
}

// RestoreBackup restores vmID from backupID.
func (s *Service) RestoreBackup(ctx context.Context, vmID, backupID string) error {
	s.backups.ClearError()
	if err := s.call(ctx, http.MethodPost, api.VirtualizationPath("virtualmachines", vmID, "backups", backupID, "restore"), nil, nil); err != nil {
		return s.backups.Fail(store.CodeUpdate, "restore", err)
	}
	return nil
}

// DeleteBackup deletes backupID and drops it from the collection.
func (s *Service) DeleteBackup(ctx context.Context, backupID string) error {
	s.backups.ClearError()
	if err := s.call(ctx, http.MethodDelete, api.VirtualizationPath("backups", backupID), nil, nil); err != nil {
		return s.backups.Fail(store.CodeDelete, "delete", err)
	}
	s.backups.Remove(backupID)
	return nil
}
