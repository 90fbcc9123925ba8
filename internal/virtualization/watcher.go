package virtualization

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"
)

// StateFeedPath is the WebSocket endpoint for VM state changes.
const StateFeedPath = "/ws/virtualization/vms"

const (
	minRedial = time.Second
	maxRedial = 30 * time.Second
)

// URLFunc returns the feed URL to dial. It is called on every attempt so a
// refreshed token is picked up.
type URLFunc func() (string, error)

// Watcher keeps a WebSocket open to the state-change feed and applies each
// message to the VM collection. A dropped connection is redialled with
// exponential backoff.
type Watcher struct {
	svc    *Service
	url    URLFunc
	dialer *websocket.Dialer
}

// NewWatcher returns a watcher for svc. A nil dialer uses
// websocket.DefaultDialer.
func NewWatcher(svc *Service, url URLFunc, dialer *websocket.Dialer) *Watcher {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Watcher{svc: svc, url: url, dialer: dialer}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	failures := 0
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			failures = 0
		}
		failures++
		delay := redialDelay(failures)
		klog.InfoS("VM state feed disconnected", "err", err, "retryIn", delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func redialDelay(failures int) time.Duration {
	d := minRedial
	for i := 1; i < failures && d < maxRedial; i++ {
		d *= 2
	}
	return min(d, maxRedial)
}

// session dials once and reads until the connection ends.
func (w *Watcher) session(ctx context.Context) (bool, error) {
	target, err := w.url()
	if err != nil {
		return false, err
	}
	conn, resp, err := w.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, errors.New("state feed rejected token")
		}
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	w.svc.live.Set(true)
	defer w.svc.live.Set(false)
	klog.V(1).InfoS("VM state feed connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var msg StateChange
		if err := json.Unmarshal(data, &msg); err != nil {
			klog.V(2).InfoS("Ignoring malformed feed message", "err", err)
			continue
		}
		w.svc.ApplyStateChange(msg)
	}
}

// ApplyStateChange patches the state of the VM named by msg. Only
// vm-state-change messages for VMs already in the collection have an effect;
// every other field is left as it is.
func (s *Service) ApplyStateChange(msg StateChange) bool {
	if msg.Type != MessageStateChange || msg.VMID == "" || !s.vms.Exists(msg.VMID) {
		return false
	}
	if _, err := s.vms.Patch(msg.VMID, map[string]any{"state": normalizeState(string(msg.NewState))}); err != nil {
		klog.ErrorS(err, "Apply VM state change", "id", msg.VMID)
		return false
	}
	klog.V(2).InfoS("VM state changed", "id", msg.VMID, "from", msg.OldState, "to", msg.NewState)
	return true
}
