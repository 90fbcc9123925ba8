package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/prefs"
	"github.com/five82/vapor-console/internal/state"
)

// Persist keys for the cached host facts.
const (
	PersistSummary    = "vapor.metrics.systemSummary"
	PersistCPUInfo    = "vapor.metrics.cpuInfo"
	PersistMemoryInfo = "vapor.metrics.memoryInfo"
)

// Alert thresholds, in percent.
const (
	warnPercent     = 75
	criticalPercent = 90
)

// Options configure a Service.
type Options struct {
	Client *api.Client
	// Prefs caches the host facts across runs. Nil keeps them in memory.
	Prefs  *prefs.Store
	Tokens api.TokenSource
	// FeedURL resolves the metrics feed on every dial.
	FeedURL URLFunc
	Dialer  *websocket.Dialer
	// MaxPoints bounds each history series. Zero uses DefaultMaxPoints.
	MaxPoints int
	Now       func() time.Time
}

// Service owns the metrics state.
type Service struct {
	transport api.Transport
	tokens    api.TokenSource
	feedURL   URLFunc
	dialer    *websocket.Dialer
	maxPoints int
	now       func() time.Time

	summaryRaw    *state.Atom[string]
	cpuInfoRaw    *state.Atom[string]
	memoryInfoRaw *state.Atom[string]

	cpu        *state.Atom[*CPUSample]
	memory     *state.Atom[*MemorySample]
	disk       *state.Atom[*DiskSample]
	network    *state.Atom[*NetworkSample]
	history    *state.Atom[History]
	connected  *state.Atom[bool]
	lastUpdate *state.Atom[time.Time]
	lastErr    *state.Atom[string]

	summary         *state.Computed[*SystemSummary]
	cpuInfo         *state.Computed[*CPUInfo]
	memoryInfo      *state.Computed[*MemoryInfo]
	cpuUsage        *state.Computed[float64]
	memoryUsage     *state.Computed[float64]
	availableMemory *state.Computed[uint64]
	loadAverage     *state.Computed[LoadAverage]
	cpuTrend        *state.Computed[Trend]
	memoryTrend     *state.Computed[Trend]
	alerts          *state.Computed[[]Alert]
	snapshot        *state.Computed[Snapshot]

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	counters map[string]interfaceCounters
	countAt  time.Time
}

// New builds the service. Cached host facts are restored from opts.Prefs.
func New(opts Options) *Service {
	s := &Service{
		tokens:    opts.Tokens,
		feedURL:   opts.FeedURL,
		dialer:    opts.Dialer,
		maxPoints: opts.MaxPoints,
		now:       opts.Now,
	}
	if opts.Client != nil {
		s.transport = opts.Client
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.maxPoints <= 0 {
		s.maxPoints = DefaultMaxPoints
	}
	if s.now == nil {
		s.now = time.Now
	}

	cached := func(key string) *state.Atom[string] {
		if opts.Prefs == nil {
			return state.NewAtom("")
		}
		return prefs.String(opts.Prefs, key, "")
	}
	s.summaryRaw = cached(PersistSummary)
	s.cpuInfoRaw = cached(PersistCPUInfo)
	s.memoryInfoRaw = cached(PersistMemoryInfo)

	s.cpu = state.NewAtom[*CPUSample](nil)
	s.memory = state.NewAtom[*MemorySample](nil)
	s.disk = state.NewAtom[*DiskSample](nil)
	s.network = state.NewAtom[*NetworkSample](nil)
	s.history = state.NewAtom(History{})
	s.connected = state.NewAtom(false)
	s.lastUpdate = state.NewAtom(time.Time{})
	s.lastErr = state.NewAtom("")

	s.summary = state.Derive(s.summaryRaw, decodeCached[SystemSummary])
	s.cpuInfo = state.Derive(s.cpuInfoRaw, decodeCached[CPUInfo])
	s.memoryInfo = state.Derive(s.memoryInfoRaw, decodeCached[MemoryInfo])
	s.cpuUsage = state.Derive(s.cpu, func(c *CPUSample) float64 {
		if c == nil {
			return 0
		}
		return c.UsagePercent
	})
	s.memoryUsage = state.Derive(s.memory, func(m *MemorySample) float64 {
		if m == nil {
			return 0
		}
		return m.UsedPercent
	})
	s.availableMemory = state.Derive(s.memory, func(m *MemorySample) uint64 {
		if m == nil {
			return 0
		}
		return m.Available
	})
	s.loadAverage = state.Derive(s.cpu, func(c *CPUSample) LoadAverage {
		if c == nil {
			return LoadAverage{}
		}
		return LoadAverage{Load1: c.Load1, Load5: c.Load5, Load15: c.Load15}
	})
	s.cpuTrend = state.Derive(s.history, func(h History) Trend { return trendOf(h.CPU) })
	s.memoryTrend = state.Derive(s.history, func(h History) Trend { return trendOf(h.Memory) })
	s.alerts = state.Derive2(s.cpuUsage, s.memoryUsage, alertsFor)
	s.snapshot = state.DeriveFunc(s.currentSnapshot,
		state.On(s.summary), state.On(s.cpuInfo), state.On(s.memoryInfo),
		state.On(s.cpu), state.On(s.memory), state.On(s.disk), state.On(s.network),
		state.On(s.history), state.On(s.connected), state.On(s.lastUpdate), state.On(s.lastErr))
	return s
}

func decodeCached[T any](raw string) *T {
	if raw == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		klog.V(2).InfoS("Ignoring undecodable cached metrics", "err", err)
		return nil
	}
	return &v
}

// Summary is the cached host summary; nil before the first fetch.
func (s *Service) Summary() state.Readable[*SystemSummary] { return s.summary }

// CPUInfo is the cached CPU model; nil before the first fetch.
func (s *Service) CPUInfo() state.Readable[*CPUInfo] { return s.cpuInfo }

// MemoryInfo is the cached memory size; nil before the first fetch.
func (s *Service) MemoryInfo() state.Readable[*MemoryInfo] { return s.memoryInfo }

// CPU is the latest CPU sample.
func (s *Service) CPU() state.Readable[*CPUSample] { return s.cpu }

// Memory is the latest memory sample.
func (s *Service) Memory() state.Readable[*MemorySample] { return s.memory }

// Disk is the latest disk sample.
func (s *Service) Disk() state.Readable[*DiskSample] { return s.disk }

// Network is the latest network sample.
func (s *Service) Network() state.Readable[*NetworkSample] { return s.network }

// CPUUsage is the latest total CPU percentage.
func (s *Service) CPUUsage() state.Readable[float64] { return s.cpuUsage }

// MemoryUsage is the latest used memory percentage.
func (s *Service) MemoryUsage() state.Readable[float64] { return s.memoryUsage }

// AvailableMemory is in bytes.
func (s *Service) AvailableMemory() state.Readable[uint64] { return s.availableMemory }

// LoadAverage is the 1, 5 and 15 minute load of the latest CPU sample.
func (s *Service) LoadAverage() state.Readable[LoadAverage] { return s.loadAverage }

// CPUTrend compares the latest CPU point with the recent average.
func (s *Service) CPUTrend() state.Readable[Trend] { return s.cpuTrend }

// MemoryTrend compares the latest memory point with the recent average.
func (s *Service) MemoryTrend() state.Readable[Trend] { return s.memoryTrend }

// Alerts lists CPU and memory threshold crossings, CPU first.
func (s *Service) Alerts() state.Readable[[]Alert] { return s.alerts }

// Connected reports whether the feed is subscribed.
func (s *Service) Connected() state.Readable[bool] { return s.connected }

// LastUpdate is when the latest sample was recorded.
func (s *Service) LastUpdate() state.Readable[time.Time] { return s.lastUpdate }

// Err is the latest feed or fetch failure; empty when none.
func (s *Service) Err() state.Readable[string] { return s.lastErr }

// State combines every metrics value.
func (s *Service) State() state.Readable[Snapshot] { return s.snapshot }

func (s *Service) currentSnapshot() Snapshot {
	return Snapshot{
		Summary:    s.summary.Get(),
		CPUInfo:    s.cpuInfo.Get(),
		MemoryInfo: s.memoryInfo.Get(),
		CPU:        s.cpu.Get(),
		Memory:     s.memory.Get(),
		Disk:       s.disk.Get(),
		Network:    s.network.Get(),
		History:    s.history.Get(),
		Connected:  s.connected.Get(),
		LastUpdate: s.lastUpdate.Get(),
		Error:      s.lastErr.Get(),
	}
}

// UpdateCPU records a CPU sample and its usage in the history.
func (s *Service) UpdateCPU(sample CPUSample) {
	s.cpu.Set(&sample)
	s.record(MetricCPU, sample.UsagePercent)
}

// UpdateMemory records a memory sample and its used percentage.
func (s *Service) UpdateMemory(sample MemorySample) {
	s.memory.Set(&sample)
	s.record(MetricMemory, sample.UsedPercent)
}

// UpdateDisk records a disk sample and the mean used percentage of its
// filesystems.
func (s *Service) UpdateDisk(sample DiskSample) {
	s.disk.Set(&sample)
	var sum float64
	for _, d := range sample.Disks {
		sum += d.UsedPercent
	}
	avg := 0.0
	if len(sample.Disks) > 0 {
		avg = sum / float64(len(sample.Disks))
	}
	s.record(MetricDisk, avg)
}

// UpdateNetwork records a network sample and its total throughput in MB/s.
func (s *Service) UpdateNetwork(sample NetworkSample) {
	s.network.Set(&sample)
	var bytes float64
	for _, i := range sample.Interfaces {
		bytes += i.RxBytesPerSec + i.TxBytesPerSec
	}
	s.record(MetricNetwork, bytes/1024/1024)
}

func (s *Service) record(m Metric, value float64) {
	now := s.now()
	p := Point{Time: now, Value: value, Label: now.Format(time.TimeOnly)}
	s.history.Update(func(h History) History { return h.with(m, p, s.maxPoints) })
	s.lastUpdate.Set(now)
}

// History returns the points of m, oldest first.
func (s *Service) History(m Metric) []Point {
	return append([]Point(nil), s.history.Get().Series(m)...)
}

// Average is the mean of the points of m taken within period of now.
func (s *Service) Average(m Metric, period time.Duration) float64 {
	return averageSince(s.history.Get().Series(m), s.now().Add(-period))
}

// ClearHistory drops every series.
func (s *Service) ClearHistory() {
	s.history.Set(History{})
}

// FetchSystemInfo loads the host summary, CPU model and memory size in
// parallel and caches them. It does nothing while logged out.
func (s *Service) FetchSystemInfo(ctx context.Context) error {
	if s.tokens == nil || strings.TrimSpace(s.tokens.Token()) == "" {
		klog.V(2).InfoS("Skipping system info fetch while logged out")
		return nil
	}
	if s.transport == nil {
		return fmt.Errorf("no backend configured")
	}
	g, ctx := errgroup.WithContext(ctx)
	targets := map[string]*state.Atom[string]{
		"summary": s.summaryRaw,
		"cpu":     s.cpuInfoRaw,
		"memory":  s.memoryInfoRaw,
	}
	for name, dest := range targets {
		g.Go(func() error {
			raw, err := s.transport.Send(ctx, http.MethodGet, api.SystemPath(name), nil)
			if err != nil {
				return fmt.Errorf("fetch system %s: %w", name, err)
			}
			payload, err := api.Unwrap(raw)
			if err != nil {
				return fmt.Errorf("fetch system %s: %w", name, err)
			}
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(payload, &obj); err != nil {
				return fmt.Errorf("decode system %s: %w", name, err)
			}
			dest.Set(string(payload))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		klog.ErrorS(err, "System info fetch failed")
		s.lastErr.Set(err.Error())
		return err
	}
	return nil
}

// Connect starts the metrics feed. It is a no-op while already running.
func (s *Service) Connect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.feedURL == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		s.run(ctx)
	}()
}

// Disconnect stops the feed and waits for it to exit. History is kept.
func (s *Service) Disconnect() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.connected.Set(false)

	s.mu.Lock()
	s.counters, s.countAt = nil, time.Time{}
	s.mu.Unlock()
}

// Cleanup disconnects the feed. Samples and history stay for the next view.
func (s *Service) Cleanup() {
	s.Disconnect()
}

// Reset disconnects and forgets every sample, the history and the error.
// Cached host facts stay; they describe the host, not the session.
func (s *Service) Reset() {
	s.Disconnect()
	s.cpu.Set(nil)
	s.memory.Set(nil)
	s.disk.Set(nil)
	s.network.Set(nil)
	s.ClearHistory()
	s.lastUpdate.Set(time.Time{})
	s.lastErr.Set("")
}

// Close stops the feed and releases derived values.
func (s *Service) Close() {
	s.Disconnect()
	for _, c := range []interface{ Close() }{
		s.snapshot, s.alerts, s.memoryTrend, s.cpuTrend, s.loadAverage,
		s.availableMemory, s.memoryUsage, s.cpuUsage,
		s.memoryInfo, s.cpuInfo, s.summary,
	} {
		c.Close()
	}
}

func alertsFor(cpu, memory float64) []Alert {
	var out []Alert
	for _, m := range []struct {
		name  string
		value float64
	}{{"CPU", cpu}, {"Memory", memory}} {
		switch {
		case m.value > criticalPercent:
			out = append(out, Alert{Level: AlertError, Message: fmt.Sprintf("%s usage critical: %.1f%%", m.name, m.value)})
		case m.value > warnPercent:
			out = append(out, Alert{Level: AlertWarning, Message: fmt.Sprintf("%s usage high: %.1f%%", m.name, m.value)})
		}
	}
	return out
}

// FormatUptime renders seconds as days, hours and minutes, skipping zero
// parts.
func FormatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d days", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d hours", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d minutes", minutes))
	}
	if len(parts) == 0 {
		return "0 minutes"
	}
	return strings.Join(parts, ", ")
}
