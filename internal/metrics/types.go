package metrics

import "time"

// Metric names a history series.
type Metric string

const (
	MetricCPU     Metric = "cpu"
	MetricMemory  Metric = "memory"
	MetricDisk    Metric = "disk"
	MetricNetwork Metric = "network"
)

// Trend is the direction of the recent history of a metric.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// AlertLevel grades an Alert.
type AlertLevel string

const (
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Alert is a threshold crossing on the current samples.
type Alert struct {
	Level   AlertLevel
	Message string
}

// Point is one history entry. Label is the wall-clock time it was taken.
type Point struct {
	Time  time.Time
	Value float64
	Label string
}

// SystemSummary describes the host.
type SystemSummary struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformFamily  string `json:"platform_family"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Uptime          uint64 `json:"uptime"`
	BootTime        uint64 `json:"boot_time"`
	CPUCount        int    `json:"cpu_count"`
}

// CPUInfo is the CPU model and its load.
type CPUInfo struct {
	ModelName string  `json:"model_name"`
	Cores     int     `json:"cores"`
	Load1     float64 `json:"load1"`
	Load5     float64 `json:"load5"`
	Load15    float64 `json:"load15"`
}

// MemoryInfo is the memory size and use.
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// CoreUsage is the load of one core.
type CoreUsage struct {
	Core         int     `json:"core"`
	UsagePercent float64 `json:"usage_percent"`
}

// CPUSample is one CPU reading.
type CPUSample struct {
	UsagePercent float64     `json:"usage_percent"`
	Load1        float64     `json:"load1"`
	Load5        float64     `json:"load5"`
	Load15       float64     `json:"load15"`
	Cores        []CoreUsage `json:"cores,omitempty"`
}

// MemorySample is one memory reading.
type MemorySample struct {
	Total           uint64  `json:"total"`
	Used            uint64  `json:"used"`
	Free            uint64  `json:"free"`
	Available       uint64  `json:"available"`
	UsedPercent     float64 `json:"used_percent"`
	SwapTotal       uint64  `json:"swap_total"`
	SwapUsed        uint64  `json:"swap_used"`
	SwapFree        uint64  `json:"swap_free"`
	SwapUsedPercent float64 `json:"swap_used_percent"`
}

// DiskUsage is one mounted filesystem.
type DiskUsage struct {
	Device      string  `json:"device"`
	MountPoint  string  `json:"mount_point"`
	Filesystem  string  `json:"filesystem"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskSample is one reading of every filesystem.
type DiskSample struct {
	Disks []DiskUsage `json:"disks"`
}

// InterfaceRate is the traffic rate of one interface.
type InterfaceRate struct {
	Name            string  `json:"name"`
	RxBytesPerSec   float64 `json:"rx_bytes_per_sec"`
	TxBytesPerSec   float64 `json:"tx_bytes_per_sec"`
	RxPacketsPerSec float64 `json:"rx_packets_per_sec"`
	TxPacketsPerSec float64 `json:"tx_packets_per_sec"`
	RxErrors        uint64  `json:"rx_errors"`
	TxErrors        uint64  `json:"tx_errors"`
	RxDropped       uint64  `json:"rx_dropped"`
	TxDropped       uint64  `json:"tx_dropped"`
}

// NetworkSample is one reading of every interface.
type NetworkSample struct {
	Interfaces []InterfaceRate `json:"interfaces"`
}

// LoadAverage is the 1, 5 and 15 minute load.
type LoadAverage struct {
	Load1  float64
	Load5  float64
	Load15 float64
}

// Snapshot is the combined metrics state.
type Snapshot struct {
	Summary    *SystemSummary
	CPUInfo    *CPUInfo
	MemoryInfo *MemoryInfo
	CPU        *CPUSample
	Memory     *MemorySample
	Disk       *DiskSample
	Network    *NetworkSample
	History    History
	Connected  bool
	LastUpdate time.Time
	Error      string
}
