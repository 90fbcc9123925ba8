package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/five82/vapor-console/internal/api"
	"github.com/five82/vapor-console/internal/prefs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestUpdatesRecordHistory(t *testing.T) {
	clk := newClock()
	svc := New(Options{Now: clk.Now, MaxPoints: 3})
	defer svc.Close()

	for _, u := range []float64{10, 20, 30, 40} {
		svc.UpdateCPU(CPUSample{UsagePercent: u, Load1: 1, Load5: 2, Load15: 3})
		clk.Advance(time.Second)
	}
	var got []float64
	for _, p := range svc.History(MetricCPU) {
		got = append(got, p.Value)
	}
	if diff := cmp.Diff([]float64{20, 30, 40}, got); diff != "" {
		t.Fatalf("cpu history (-want +got):\n%s", diff)
	}
	if last := svc.History(MetricCPU)[2]; last.Label != "10:00:03" {
		t.Fatalf("label = %q", last.Label)
	}
	if svc.CPUUsage().Get() != 40 {
		t.Fatalf("CPUUsage = %v", svc.CPUUsage().Get())
	}
	if diff := cmp.Diff(LoadAverage{Load1: 1, Load5: 2, Load15: 3}, svc.LoadAverage().Get()); diff != "" {
		t.Fatalf("LoadAverage (-want +got):\n%s", diff)
	}
	if !svc.LastUpdate().Get().Equal(clk.Now().Add(-time.Second)) {
		t.Fatalf("LastUpdate = %v", svc.LastUpdate().Get())
	}
}

func TestDiskAndNetworkHistoryValues(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	svc.UpdateDisk(DiskSample{Disks: []DiskUsage{{UsedPercent: 20}, {UsedPercent: 60}}})
	svc.UpdateDisk(DiskSample{})
	svc.UpdateNetwork(NetworkSample{Interfaces: []InterfaceRate{
		{Name: "eth0", RxBytesPerSec: 1 << 20, TxBytesPerSec: 1 << 19},
		{Name: "eth1", RxBytesPerSec: 1 << 19},
	}})

	disk := svc.History(MetricDisk)
	if len(disk) != 2 || disk[0].Value != 40 || disk[1].Value != 0 {
		t.Fatalf("disk history = %+v", disk)
	}
	if net := svc.History(MetricNetwork); len(net) != 1 || net[0].Value != 2 {
		t.Fatalf("network history = %+v", net)
	}
}

func TestMemoryDerivedValues(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	if svc.MemoryUsage().Get() != 0 || svc.AvailableMemory().Get() != 0 {
		t.Fatalf("derived values set before a sample")
	}
	svc.UpdateMemory(MemorySample{Total: 16 << 30, Available: 4 << 30, UsedPercent: 75})
	if svc.MemoryUsage().Get() != 75 || svc.AvailableMemory().Get() != 4<<30 {
		t.Fatalf("MemoryUsage = %v, AvailableMemory = %v", svc.MemoryUsage().Get(), svc.AvailableMemory().Get())
	}
}

func TestAlerts(t *testing.T) {
	tests := []struct {
		name        string
		cpu, memory float64
		want        []Alert
	}{
		{name: "quiet", cpu: 50, memory: 75},
		{name: "cpu high", cpu: 80, memory: 10, want: []Alert{{AlertWarning, "CPU usage high: 80.0%"}}},
		{
			name: "both",
			cpu:  95.25, memory: 91,
			want: []Alert{{AlertError, "CPU usage critical: 95.2%"}, {AlertError, "Memory usage critical: 91.0%"}},
		},
		{name: "memory high", cpu: 90, memory: 76.5, want: []Alert{
			{AlertWarning, "CPU usage high: 90.0%"}, {AlertWarning, "Memory usage high: 76.5%"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(Options{})
			defer svc.Close()
			svc.UpdateCPU(CPUSample{UsagePercent: tt.cpu})
			svc.UpdateMemory(MemorySample{UsedPercent: tt.memory})
			if diff := cmp.Diff(tt.want, svc.Alerts().Get()); diff != "" {
				t.Fatalf("Alerts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCPUTrendFollowsHistory(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()

	for _, u := range []float64{10, 10, 10, 10} {
		svc.UpdateCPU(CPUSample{UsagePercent: u})
	}
	if svc.CPUTrend().Get() != TrendStable {
		t.Fatalf("CPUTrend = %s", svc.CPUTrend().Get())
	}
	svc.UpdateCPU(CPUSample{UsagePercent: 70})
	if svc.CPUTrend().Get() != TrendIncreasing {
		t.Fatalf("CPUTrend = %s after spike", svc.CPUTrend().Get())
	}
	if svc.MemoryTrend().Get() != TrendStable {
		t.Fatalf("MemoryTrend = %s without samples", svc.MemoryTrend().Get())
	}
}

func TestAverageUsesPeriod(t *testing.T) {
	clk := newClock()
	svc := New(Options{Now: clk.Now})
	defer svc.Close()

	svc.UpdateMemory(MemorySample{UsedPercent: 90})
	clk.Advance(time.Minute)
	svc.UpdateMemory(MemorySample{UsedPercent: 30})
	clk.Advance(time.Second)
	svc.UpdateMemory(MemorySample{UsedPercent: 50})

	if got := svc.Average(MetricMemory, 10*time.Second); got != 40 {
		t.Fatalf("Average over 10s = %v, want 40", got)
	}
	if got := svc.Average(MetricMemory, time.Hour); got != 170.0/3 {
		t.Fatalf("Average over 1h = %v", got)
	}
	svc.ClearHistory()
	if got := svc.Average(MetricMemory, time.Hour); got != 0 {
		t.Fatalf("Average after ClearHistory = %v", got)
	}
}

func TestApplyFrameComputesRates(t *testing.T) {
	svc := New(Options{})
	defer svc.Close()
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	frame := Frame{
		Timestamp: at,
		CPU:       FrameCPU{Usage: 12.5, Cores: 2, PerCore: []float64{10, 15}, LoadAverage: []float64{0.5, 0.4, 0.3}},
		Memory:    MemorySample{Total: 100, Used: 40, UsedPercent: 40, SwapTotal: 10, SwapUsed: 5},
		Disk:      []FrameDisk{{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4", UsedPercent: 30}},
		Network:   []FrameNetwork{{Interface: "eth0", BytesRecv: 1000, BytesSent: 500, PacketsRecv: 10}},
	}
	svc.ApplyFrame(frame)
	if r := svc.Network().Get().Interfaces[0]; r.RxBytesPerSec != 0 || r.TxBytesPerSec != 0 {
		t.Fatalf("first frame rates = %+v", r)
	}

	frame.Timestamp = at.Add(2 * time.Second)
	frame.Network = []FrameNetwork{{Interface: "eth0", BytesRecv: 3000, BytesSent: 100, PacketsRecv: 30, Errin: 2}}
	svc.ApplyFrame(frame)

	want := InterfaceRate{Name: "eth0", RxBytesPerSec: 1000, RxPacketsPerSec: 10, RxErrors: 2}
	if diff := cmp.Diff(want, svc.Network().Get().Interfaces[0]); diff != "" {
		t.Fatalf("rate mismatch (-want +got):\n%s", diff)
	}
	cpu := svc.CPU().Get()
	if cpu.UsagePercent != 12.5 || cpu.Load15 != 0.3 || len(cpu.Cores) != 2 || cpu.Cores[1].UsagePercent != 15 {
		t.Fatalf("cpu = %+v", cpu)
	}
	if got := svc.Memory().Get().SwapUsedPercent; got != 50 {
		t.Fatalf("SwapUsedPercent = %v", got)
	}
	if d := svc.Disk().Get().Disks[0]; d.MountPoint != "/" || d.Filesystem != "ext4" {
		t.Fatalf("disk = %+v", d)
	}
	if n := len(svc.History(MetricCPU)); n != 2 {
		t.Fatalf("cpu history has %d points, want 2", n)
	}
}

func newSystemBackend(t *testing.T, hits *atomic.Int32) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/system/summary":
			_, _ = w.Write([]byte(`{"status":"success","data":{"hostname":"node1","os":"linux","uptime":90061,"cpu_count":8}}`))
		case "/api/v1/system/cpu":
			_, _ = w.Write([]byte(`{"model_name":"EPYC","cores":8,"load1":0.5}`))
		case "/api/v1/system/memory":
			_, _ = w.Write([]byte(`{"total":1024,"used":256,"free":768,"used_percent":25}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	client, err := api.NewClient(srv.URL, api.Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestFetchSystemInfoIsCached(t *testing.T) {
	var hits atomic.Int32
	client := newSystemBackend(t, &hits)
	store := prefs.Memory()
	tokens := api.TokenFunc(func() string { return "tok" })

	svc := New(Options{Client: client, Prefs: store, Tokens: tokens})
	if err := svc.FetchSystemInfo(context.Background()); err != nil {
		t.Fatalf("FetchSystemInfo: %v", err)
	}
	if s := svc.Summary().Get(); s == nil || s.Hostname != "node1" || s.CPUCount != 8 {
		t.Fatalf("Summary = %+v", s)
	}
	if c := svc.CPUInfo().Get(); c == nil || c.ModelName != "EPYC" {
		t.Fatalf("CPUInfo = %+v", c)
	}
	svc.Close()
	if hits.Load() != 3 {
		t.Fatalf("%d requests, want 3", hits.Load())
	}

	restored := New(Options{Prefs: store})
	defer restored.Close()
	want := &MemoryInfo{Total: 1024, Used: 256, Free: 768, UsedPercent: 25}
	if diff := cmp.Diff(want, restored.MemoryInfo().Get()); diff != "" {
		t.Fatalf("restored MemoryInfo (-want +got):\n%s", diff)
	}
	if restored.State().Get().Summary.Hostname != "node1" {
		t.Fatalf("snapshot missing restored summary")
	}
}

func TestFetchSystemInfoSkippedWhileLoggedOut(t *testing.T) {
	var hits atomic.Int32
	client := newSystemBackend(t, &hits)
	svc := New(Options{Client: client, Tokens: api.TokenFunc(func() string { return "" })})
	defer svc.Close()

	if err := svc.FetchSystemInfo(context.Background()); err != nil {
		t.Fatalf("FetchSystemInfo: %v", err)
	}
	if hits.Load() != 0 || svc.Summary().Get() != nil {
		t.Fatalf("fetched while logged out")
	}
}

func TestFetchSystemInfoFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()
	client, err := api.NewClient(srv.URL, api.Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	svc := New(Options{Client: client, Tokens: api.TokenFunc(func() string { return "tok" })})
	defer svc.Close()

	if err := svc.FetchSystemInfo(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(svc.Err().Get(), "fetch system") {
		t.Fatalf("Err = %q", svc.Err().Get())
	}
}

func TestResetKeepsCachedFacts(t *testing.T) {
	store := prefs.Memory()
	if err := store.Set(PersistSummary, `{"hostname":"node1"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	svc := New(Options{Prefs: store})
	defer svc.Close()
	svc.UpdateCPU(CPUSample{UsagePercent: 99})

	svc.Reset()
	if svc.CPU().Get() != nil || len(svc.History(MetricCPU)) != 0 || len(svc.Alerts().Get()) != 0 {
		t.Fatalf("samples survived Reset")
	}
	if s := svc.Summary().Get(); s == nil || s.Hostname != "node1" {
		t.Fatalf("Summary = %+v after Reset", s)
	}
}

func TestCachedGarbageIsIgnored(t *testing.T) {
	store := prefs.Memory()
	_ = store.Set(PersistCPUInfo, "{not json")
	svc := New(Options{Prefs: store})
	defer svc.Close()
	if svc.CPUInfo().Get() != nil {
		t.Fatalf("CPUInfo = %+v", svc.CPUInfo().Get())
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		seconds uint64
		want    string
	}{
		{0, "0 minutes"},
		{59, "0 minutes"},
		{60, "1 minutes"},
		{3600, "1 hours"},
		{90061, "1 days, 1 hours, 1 minutes"},
		{2 * 86400, "2 days"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.seconds); got != tt.want {
			t.Fatalf("FormatUptime(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
