package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"k8s.io/klog/v2"
)

// FeedPath is the metrics WebSocket, served outside the API prefix.
const FeedPath = "/ws/metrics"

// Channel is the feed channel carrying host metrics.
const Channel = "metrics"

// Feed message types.
const (
	MessageAuth      = "auth"
	MessageSubscribe = "subscribe"
	MessageData      = "data"
	MessageError     = "error"
)

const (
	minRedial = time.Second
	maxRedial = 30 * time.Second
)

// URLFunc returns the feed URL to dial.
type URLFunc func() (string, error)

// ErrNotAuthenticated is returned when the feed refuses the token.
var ErrNotAuthenticated = errors.New("metrics feed rejected token")

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type outgoing struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type authReply struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username"`
}

// Frame is one data message as the host sends it. Network counters are
// cumulative; ApplyFrame turns them into rates.
type Frame struct {
	Timestamp time.Time      `json:"timestamp"`
	CPU       FrameCPU       `json:"cpu"`
	Memory    MemorySample   `json:"memory"`
	Disk      []FrameDisk    `json:"disk"`
	Network   []FrameNetwork `json:"network"`
}

// FrameCPU is the CPU part of a Frame.
type FrameCPU struct {
	Usage       float64   `json:"usage"`
	Cores       int       `json:"cores"`
	PerCore     []float64 `json:"per_core"`
	LoadAverage []float64 `json:"load_average"`
}

// FrameDisk is one filesystem in a Frame.
type FrameDisk struct {
	Device      string  `json:"device"`
	Mountpoint  string  `json:"mountpoint"`
	Fstype      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// FrameNetwork is the cumulative counters of one interface in a Frame.
type FrameNetwork struct {
	Interface   string `json:"interface"`
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	Errin       uint64 `json:"errin"`
	Errout      uint64 `json:"errout"`
	Dropin      uint64 `json:"dropin"`
	Dropout     uint64 `json:"dropout"`
}

type interfaceCounters struct {
	rxBytes, txBytes     uint64
	rxPackets, txPackets uint64
}

// ApplyFrame records every part of f.
func (s *Service) ApplyFrame(f Frame) {
	cpu := CPUSample{UsagePercent: f.CPU.Usage}
	if la := f.CPU.LoadAverage; len(la) >= 3 {
		cpu.Load1, cpu.Load5, cpu.Load15 = la[0], la[1], la[2]
	}
	for i, u := range f.CPU.PerCore {
		cpu.Cores = append(cpu.Cores, CoreUsage{Core: i, UsagePercent: u})
	}
	s.UpdateCPU(cpu)

	mem := f.Memory
	if mem.SwapTotal > 0 && mem.SwapUsedPercent == 0 {
		mem.SwapUsedPercent = float64(mem.SwapUsed) / float64(mem.SwapTotal) * 100
	}
	s.UpdateMemory(mem)

	disk := DiskSample{Disks: make([]DiskUsage, 0, len(f.Disk))}
	for _, d := range f.Disk {
		disk.Disks = append(disk.Disks, DiskUsage{
			Device:      d.Device,
			MountPoint:  d.Mountpoint,
			Filesystem:  d.Fstype,
			Total:       d.Total,
			Used:        d.Used,
			Free:        d.Free,
			UsedPercent: d.UsedPercent,
		})
	}
	s.UpdateDisk(disk)

	at := f.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	s.UpdateNetwork(s.rates(at, f.Network))
}

// rates differences the counters against the previous frame. The first frame,
// and any counter that went backwards, yields zero.
func (s *Service) rates(at time.Time, ifaces []FrameNetwork) NetworkSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := at.Sub(s.countAt).Seconds()
	if s.countAt.IsZero() || elapsed <= 0 {
		elapsed = 0
	}
	next := make(map[string]interfaceCounters, len(ifaces))
	out := NetworkSample{Interfaces: make([]InterfaceRate, 0, len(ifaces))}
	for _, n := range ifaces {
		cur := interfaceCounters{
			rxBytes: n.BytesRecv, txBytes: n.BytesSent,
			rxPackets: n.PacketsRecv, txPackets: n.PacketsSent,
		}
		next[n.Interface] = cur
		rate := InterfaceRate{
			Name:      n.Interface,
			RxErrors:  n.Errin,
			TxErrors:  n.Errout,
			RxDropped: n.Dropin,
			TxDropped: n.Dropout,
		}
		if prev, ok := s.counters[n.Interface]; ok && elapsed > 0 {
			rate.RxBytesPerSec = perSecond(prev.rxBytes, cur.rxBytes, elapsed)
			rate.TxBytesPerSec = perSecond(prev.txBytes, cur.txBytes, elapsed)
			rate.RxPacketsPerSec = perSecond(prev.rxPackets, cur.rxPackets, elapsed)
			rate.TxPacketsPerSec = perSecond(prev.txPackets, cur.txPackets, elapsed)
		}
		out.Interfaces = append(out.Interfaces, rate)
	}
	s.counters, s.countAt = next, at
	return out
}

func perSecond(prev, cur uint64, seconds float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}

func (s *Service) run(ctx context.Context) {
	failures := 0
	for {
		subscribed, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			failures = 0
		}
		failures++
		delay := redialDelay(failures)
		if err != nil {
			s.lastErr.Set(err.Error())
		}
		klog.InfoS("Metrics feed disconnected", "err", err, "retryIn", delay)

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

// session dials, authenticates, subscribes and reads frames until the
// connection ends. It reports whether the subscription was reached.
func (s *Service) session(ctx context.Context) (bool, error) {
	target, err := s.feedURL()
	if err != nil {
		return false, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrNotAuthenticated
		}
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	token := ""
	if s.tokens != nil {
		token = s.tokens.Token()
	}
	if err := conn.WriteJSON(outgoing{Type: MessageAuth, Payload: map[string]string{"token": token}}); err != nil {
		return false, fmt.Errorf("send auth: %w", err)
	}
	var reply message
	if err := conn.ReadJSON(&reply); err != nil {
		return false, fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case MessageAuth:
		var ar authReply
		if err := json.Unmarshal(reply.Payload, &ar); err != nil || !ar.Authenticated {
			return false, ErrNotAuthenticated
		}
		klog.V(1).InfoS("Metrics feed authenticated", "user", ar.Username)
	case MessageError:
		return false, fmt.Errorf("metrics feed: %s", reply.Error)
	default:
		return false, fmt.Errorf("unexpected auth reply %q", reply.Type)
	}

	if err := conn.WriteJSON(outgoing{Type: MessageSubscribe, Payload: map[string]string{"channel": Channel}}); err != nil {
		return false, fmt.Errorf("send subscribe: %w", err)
	}
	s.connected.Set(true)
	s.lastErr.Set("")
	defer s.connected.Set(false)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			klog.V(2).InfoS("Ignoring malformed metrics message", "err", err)
			continue
		}
		switch msg.Type {
		case MessageData:
			var f Frame
			if err := json.Unmarshal(msg.Payload, &f); err != nil {
				klog.V(2).InfoS("Ignoring undecodable metrics frame", "err", err)
				continue
			}
			s.ApplyFrame(f)
		case MessageError:
			klog.InfoS("Metrics feed error", "msg", msg.Error)
			s.lastErr.Set(msg.Error)
		}
	}
}
