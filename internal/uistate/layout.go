package uistate

import (
	"github.com/google/uuid"

	"github.com/five82/vapor-console/internal/bus"
	"github.com/five82/vapor-console/internal/state"
)

// ActiveDrawer is the open drawer, nil when closed.
func (s *Service) ActiveDrawer() state.Readable[*DrawerState] { return s.drawer }

// ActiveModal is the open modal, nil when closed.
func (s *Service) ActiveModal() state.Readable[*ModalState] { return s.modal }

// Breadcrumbs is the navigation trail.
func (s *Service) Breadcrumbs() state.Readable[[]Breadcrumb] { return s.breadcrumbs }

// ContextMenu is the open context menu, nil when hidden.
func (s *Service) ContextMenu() state.Readable[*ContextMenu] { return s.contextMenu }

// OpenDrawer replaces any open drawer with d and returns its new id.
func (s *Service) OpenDrawer(d DrawerState) string {
	d.ID = "drawer-" + uuid.NewString()
	s.drawer.Set(&d)
	s.bus.Publish(bus.DrawerOpen, d)
	return d.ID
}

// CloseDrawer closes the open drawer, if any.
func (s *Service) CloseDrawer() {
	prev := s.drawer.Get()
	if prev == nil {
		return
	}
	s.drawer.Set(nil)
	s.bus.Publish(bus.DrawerClose, prev.ID)
}

// UpdateDrawer replaces the open drawer's data.
func (s *Service) UpdateDrawer(data any) {
	s.drawer.UpdateIf(func(cur *DrawerState) (*DrawerState, bool) {
		if cur == nil {
			return cur, false
		}
		next := *cur
		next.Data = data
		return &next, true
	})
}

// OpenModal replaces any open modal with m and returns its new id.
func (s *Service) OpenModal(m ModalState) string {
	m.ID = "modal-" + uuid.NewString()
	s.modal.Set(&m)
	s.bus.Publish(bus.ModalOpen, m)
	return m.ID
}

// CloseModal closes the open modal, if any.
func (s *Service) CloseModal() {
	prev := s.modal.Get()
	if prev == nil {
		return
	}
	s.modal.Set(nil)
	s.bus.Publish(bus.ModalClose, prev.ID)
}

// SetBreadcrumbs replaces the navigation trail.
func (s *Service) SetBreadcrumbs(crumbs []Breadcrumb) {
	s.breadcrumbs.Set(append([]Breadcrumb(nil), crumbs...))
}

// ShowContextMenu opens a context menu at x, y.
func (s *Service) ShowContextMenu(x, y int, items []MenuItem) {
	s.contextMenu.Set(&ContextMenu{X: x, Y: y, Items: append([]MenuItem(nil), items...)})
}

// HideContextMenu closes the context menu.
func (s *Service) HideContextMenu() {
	s.contextMenu.Set(nil)
}

// GlobalLoading is the set of active loading indicators.
func (s *Service) GlobalLoading() state.Readable[map[string]LoadingEntry] { return s.loading }

// IsLoading is true while any loading indicator is active.
func (s *Service) IsLoading() state.Readable[bool] { return s.isLoading }

// LoadingCount is the number of active loading indicators.
func (s *Service) LoadingCount() state.Readable[int] { return s.loadingCount }

// StartLoading activates the indicator key.
func (s *Service) StartLoading(key, message string) {
	s.loading.Update(func(cur map[string]LoadingEntry) map[string]LoadingEntry {
		next := copyLoading(cur)
		next[key] = LoadingEntry{Key: key, Message: message}
		return next
	})
}

// UpdateLoadingProgress sets progress on an active indicator. An empty
// message keeps the previous one.
func (s *Service) UpdateLoadingProgress(key string, progress float64, message string) {
	s.loading.UpdateIf(func(cur map[string]LoadingEntry) (map[string]LoadingEntry, bool) {
		entry, ok := cur[key]
		if !ok {
			return cur, false
		}
		entry.Progress = &progress
		if message != "" {
			entry.Message = message
		}
		next := copyLoading(cur)
		next[key] = entry
		return next, true
	})
}

// StopLoading clears the indicator key without touching any other.
func (s *Service) StopLoading(key string) {
	s.loading.UpdateIf(func(cur map[string]LoadingEntry) (map[string]LoadingEntry, bool) {
		if _, ok := cur[key]; !ok {
			return cur, false
		}
		next := copyLoading(cur)
		delete(next, key)
		return next, true
	})
}

// StopAllLoading clears every indicator.
func (s *Service) StopAllLoading() {
	s.loading.Set(map[string]LoadingEntry{})
}

func copyLoading(cur map[string]LoadingEntry) map[string]LoadingEntry {
	next := make(map[string]LoadingEntry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	return next
}
