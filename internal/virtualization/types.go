package virtualization

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VMState is the lifecycle state reported for a virtual machine.
type VMState string

const (
	StateRunning   VMState = "running"
	StateStopped   VMState = "stopped"
	StatePaused    VMState = "paused"
	StateSuspended VMState = "suspended"
	StateUnknown   VMState = "unknown"
)

// VirtualMachine is a libvirt domain as the backend reports it. Memory is in
// MB and DiskSize in GB.
type VirtualMachine struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	State             VMState            `json:"state"`
	Memory            int                `json:"memory"`
	VCPUs             int                `json:"vcpus"`
	DiskSize          int                `json:"disk_size"`
	OSType            string             `json:"os_type"`
	OSVariant         string             `json:"os_variant,omitempty"`
	CreatedAt         string             `json:"created_at"`
	UpdatedAt         string             `json:"updated_at,omitempty"`
	Graphics          *GraphicsConfig    `json:"graphics,omitempty"`
	Disks             []DiskInfo         `json:"disks,omitempty"`
	NetworkInterfaces []NetworkInterface `json:"network_interfaces,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

// GraphicsConfig is the VM display device.
type GraphicsConfig struct {
	Type     string `json:"type"`
	Port     int    `json:"port,omitempty"`
	Password string `json:"password,omitempty"`
	Autoport bool   `json:"autoport,omitempty"`
}

// DiskInfo describes an attached disk. Sizes are in GB.
type DiskInfo struct {
	Device string  `json:"device"`
	Path   string  `json:"path"`
	Format string  `json:"format"`
	Size   float64 `json:"size"`
	Used   float64 `json:"used,omitempty"`
	Bus    string  `json:"bus,omitempty"`
}

// NetworkInterface is a VM NIC.
type NetworkInterface struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
	Model  string `json:"model,omitempty"`
	MAC    string `json:"mac,omitempty"`
	IP     string `json:"ip,omitempty"`
}

// StoragePool sizes are in bytes.
type StoragePool struct {
	Name       string   `json:"name"`
	UUID       string   `json:"uuid,omitempty"`
	Type       string   `json:"type"`
	State      string   `json:"state"`
	Autostart  bool     `json:"autostart,omitempty"`
	Persistent bool     `json:"persistent,omitempty"`
	Capacity   int64    `json:"capacity"`
	Allocation int64    `json:"allocation"`
	Available  int64    `json:"available"`
	Path       string   `json:"path,omitempty"`
	Volumes    []Volume `json:"volumes,omitempty"`
}

// Volume is a storage volume inside a pool. Sizes are in bytes.
type Volume struct {
	Name       string `json:"name"`
	Key        string `json:"key"`
	Type       string `json:"type"`
	Capacity   int64  `json:"capacity"`
	Allocation int64  `json:"allocation"`
	Path       string `json:"path"`
	Format     string `json:"format,omitempty"`
}

// ISOImage is an installer image available to new VMs.
type ISOImage struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	OSType       string `json:"os_type,omitempty"`
	OSVariant    string `json:"os_variant,omitempty"`
	Architecture string `json:"architecture,omitempty"`
	Description  string `json:"description,omitempty"`
	UploadedAt   string `json:"uploaded_at"`
	Checksum     string `json:"checksum,omitempty"`
	StoragePool  string `json:"storage_pool,omitempty"`
}

// VMTemplate holds the defaults for creating similar VMs.
type VMTemplate struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	OSType       string   `json:"os_type"`
	OSVariant    string   `json:"os_variant,omitempty"`
	Memory       int      `json:"memory"`
	VCPUs        int      `json:"vcpus"`
	DiskSize     int      `json:"disk_size"`
	NetworkType  string   `json:"network_type,omitempty"`
	GraphicsType string   `json:"graphics_type,omitempty"`
	CreatedAt    string   `json:"created_at"`
	Tags         []string `json:"tags,omitempty"`
}

// VirtualNetwork is a libvirt network, keyed by name.
type VirtualNetwork struct {
	Name      string       `json:"name"`
	UUID      string       `json:"uuid,omitempty"`
	Type      string       `json:"type,omitempty"`
	State     string       `json:"state"`
	Autostart bool         `json:"autostart,omitempty"`
	Bridge    string       `json:"bridge,omitempty"`
	IP        string       `json:"ip,omitempty"`
	Netmask   string       `json:"netmask,omitempty"`
	DHCP      *DHCPRange   `json:"dhcp,omitempty"`
	Forward   *ForwardMode `json:"forward,omitempty"`
}

// DHCPRange is the address range a network leases from.
type DHCPRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ForwardMode is how a network reaches the host's uplink.
type ForwardMode struct {
	Mode string `json:"mode"`
	Dev  string `json:"dev,omitempty"`
}

// VMBackup carries both the legacy id/vm_id fields and the newer
// backup_id/vm_uuid pair; normalizeBackup keeps them in sync.
type VMBackup struct {
	ID          string `json:"id"`
	BackupID    string `json:"backup_id,omitempty"`
	VMID        string `json:"vm_id,omitempty"`
	VMUUID      string `json:"vm_uuid,omitempty"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Location    string `json:"location,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ConsoleInfo is the connection detail for a VM's graphical console.
type ConsoleInfo struct {
	Type     string `json:"type"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Token    string `json:"token"`
	WSURL    string `json:"wsUrl,omitempty"`
	Password string `json:"password,omitempty"`
}

// VMCreateRequest is the body of the enhanced create endpoint.
type VMCreateRequest struct {
	Name        string            `json:"name"`
	Memory      int               `json:"memory"`
	VCPUs       int               `json:"vcpus"`
	Description string            `json:"description,omitempty"`
	Storage     StorageConfig     `json:"storage"`
	Network     *NetworkConfig    `json:"network,omitempty"`
	Graphics    *GraphicsConfig   `json:"graphics,omitempty"`
	Boot        *BootConfig       `json:"boot,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// StorageConfig chooses the pool, boot ISO and disks of a new VM.
type StorageConfig struct {
	DefaultPool string       `json:"default_pool"`
	BootISO     string       `json:"boot_iso,omitempty"`
	Disks       []DiskConfig `json:"disks"`
}

// DiskConfig creates or attaches one disk. Action is create, attach or clone.
type DiskConfig struct {
	Action      string `json:"action"`
	Size        int    `json:"size,omitempty"`
	Format      string `json:"format,omitempty"`
	StoragePool string `json:"storage_pool,omitempty"`
	Path        string `json:"path,omitempty"`
	Source      string `json:"source,omitempty"`
	Bus         string `json:"bus,omitempty"`
	Cache       string `json:"cache,omitempty"`
}

// NetworkConfig is the NIC of a new VM.
type NetworkConfig struct {
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
	Model  string `json:"model,omitempty"`
	MAC    string `json:"mac,omitempty"`
}

// BootConfig sets device boot order and the boot menu.
type BootConfig struct {
	Order   []string `json:"order,omitempty"`
	Menu    bool     `json:"menu,omitempty"`
	Timeout int      `json:"timeout,omitempty"`
}

// StateChange is the WebSocket push message for VM lifecycle changes.
type StateChange struct {
	Type     string  `json:"type"`
	VMID     string  `json:"vm_id"`
	OldState VMState `json:"old_state,omitempty"`
	NewState VMState `json:"new_state"`
}

// MessageStateChange is the StateChange type the store reacts to.
const MessageStateChange = "vm-state-change"

var numericVMFields = []string{"memory", "vcpus", "disk_size"}

// transformVM lower-cases state and accepts numeric fields sent as strings.
func transformVM(raw json.RawMessage) (VirtualMachine, error) {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return VirtualMachine{}, fmt.Errorf("decode vm: %w", err)
	}
	if fields == nil {
		return VirtualMachine{}, fmt.Errorf("decode vm: not an object")
	}
	st, _ := fields["state"].(string)
	fields["state"] = normalizeState(st)
	for _, k := range numericVMFields {
		fields[k] = coerceInt(fields[k])
	}
	normalized, err := json.Marshal(fields)
	if err != nil {
		return VirtualMachine{}, fmt.Errorf("encode vm: %w", err)
	}
	var vm VirtualMachine
	if err := json.Unmarshal(normalized, &vm); err != nil {
		return VirtualMachine{}, fmt.Errorf("decode vm: %w", err)
	}
	return vm, nil
}

func normalizeState(s string) VMState {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StateUnknown
	}
	return VMState(s)
}

func coerceInt(v any) int64 {
	var f float64
	switch n := v.(type) {
	case json.Number:
		f, _ = n.Float64()
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(n), 64)
	case float64:
		f = n
	case bool:
		if n {
			f = 1
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}
