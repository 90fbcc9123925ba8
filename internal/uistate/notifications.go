package uistate

import (
	"github.com/google/uuid"
	"k8s.io/klog/v2"
	"k8s.io/utils/ptr"

	"github.com/five82/vapor-console/internal/state"
)

// Notifications is the ordered list of live notifications.
func (s *Service) Notifications() state.Readable[[]Notification] { return s.notifications }

// Show appends a notification and returns its id. Notifications with a
// positive duration dismiss themselves once it elapses.
func (s *Service) Show(opts ToastOptions) string {
	n := Notification{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Message:     opts.Message,
		Severity:    opts.Severity,
		Timestamp:   s.now(),
		Duration:    DefaultDuration,
		Dismissible: true,
		Action:      opts.Action,
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	if opts.Duration != nil {
		n.Duration = *opts.Duration
	}
	if opts.Dismissible != nil {
		n.Dismissible = *opts.Dismissible
	}

	s.notifications.Update(func(cur []Notification) []Notification {
		return append(append(make([]Notification, 0, len(cur)+1), cur...), n)
	})

	if n.Severity == SeverityError && s.prefs.notificationSound.Get() {
		klog.V(1).InfoS("Notification sound", "id", n.ID)
	}

	if n.Duration > 0 {
		id := n.ID
		s.timers.Schedule(id, n.Duration, func() { s.Dismiss(id) })
	}
	return n.ID
}

// Success shows a success notification.
func (s *Service) Success(title, message string) string {
	return s.Show(ToastOptions{Title: title, Message: message, Severity: SeveritySuccess})
}

// Error shows an error notification that stays until dismissed.
func (s *Service) Error(title, message string) string {
	return s.Show(ToastOptions{Title: title, Message: message, Severity: SeverityError, Duration: ptr.To(DurationSticky)})
}

// Warning shows a warning notification.
func (s *Service) Warning(title, message string) string {
	return s.Show(ToastOptions{Title: title, Message: message, Severity: SeverityWarning})
}

// Info shows an informational notification.
func (s *Service) Info(title, message string) string {
	return s.Show(ToastOptions{Title: title, Message: message, Severity: SeverityInfo})
}

// Dismiss cancels any pending timer for id and removes the notification.
// It reports whether a notification was removed; repeated calls are no-ops.
func (s *Service) Dismiss(id string) bool {
	s.timers.Cancel(id)
	_, removed := s.notifications.UpdateIf(func(cur []Notification) ([]Notification, bool) {
		for i, n := range cur {
			if n.ID == id {
				next := make([]Notification, 0, len(cur)-1)
				next = append(next, cur[:i]...)
				return append(next, cur[i+1:]...), true
			}
		}
		return cur, false
	})
	return removed
}

// ClearNotifications cancels every timer and removes all notifications.
func (s *Service) ClearNotifications() {
	s.timers.CancelAll()
	s.notifications.Set(nil)
}

// PendingTimers reports how many auto-dismiss timers are scheduled.
func (s *Service) PendingTimers() int {
	return s.timers.Len()
}
