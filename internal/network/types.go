package network

// Interface states reported by the host.
const (
	StateUp   = "up"
	StateDown = "down"
)

// TypeAll disables the interface type filter.
const TypeAll = "all"

// Statistics are the cumulative counters of an interface.
type Statistics struct {
	RxBytes   int64 `json:"rx_bytes"`
	TxBytes   int64 `json:"tx_bytes"`
	RxPackets int64 `json:"rx_packets"`
	TxPackets int64 `json:"tx_packets"`
	RxErrors  int64 `json:"rx_errors"`
	TxErrors  int64 `json:"tx_errors"`
}

// Interface is a host network link. Bridges, bonds and VLANs share the shape.
type Interface struct {
	Name       string     `json:"name"`
	MAC        string     `json:"mac"`
	MTU        int        `json:"mtu"`
	State      string     `json:"state"`
	Type       string     `json:"type"`
	Addresses  []string   `json:"addresses"`
	Statistics Statistics `json:"statistics"`
}

// AddressRequest assigns an address to an interface. Netmask is a prefix
// length.
type AddressRequest struct {
	Address string `json:"address"`
	Netmask int    `json:"netmask"`
	Gateway string `json:"gateway,omitempty"`
}

// BridgeRequest creates a bridge over Interfaces.
type BridgeRequest struct {
	Name       string   `json:"name"`
	Interfaces []string `json:"interfaces,omitempty"`
}

// BondRequest creates a bond in Mode, e.g. "802.3ad" or "active-backup".
type BondRequest struct {
	Name       string   `json:"name"`
	Mode       string   `json:"mode"`
	Interfaces []string `json:"interfaces"`
}

// VLANRequest tags Interface with VLANID. The backend names the link when
// Name is empty.
type VLANRequest struct {
	Interface string `json:"interface"`
	VLANID    int    `json:"vlan_id"`
	Name      string `json:"name,omitempty"`
}

// BridgeUpdate replaces the bridge's ports.
type BridgeUpdate struct {
	Interfaces []string `json:"interfaces,omitempty"`
}

// BondUpdate changes the bond mode or members.
type BondUpdate struct {
	Mode       string   `json:"mode,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
}

// VLANUpdate changes the VLAN tag.
type VLANUpdate struct {
	VLANID int `json:"vlan_id,omitempty"`
}

// OperationFailure names a member interface the host refused.
type OperationFailure struct {
	Interface string `json:"interface"`
	Reason    string `json:"reason"`
}

// OperationResponse reports partial success of a bridge, bond or VLAN change.
type OperationResponse struct {
	Message            string             `json:"message,omitempty"`
	SuccessfullyAdded  []string           `json:"successfully_added,omitempty"`
	Failed             []OperationFailure `json:"failed,omitempty"`
	Warning            string             `json:"warning,omitempty"`
	PersistenceWarning string             `json:"persistence_warning,omitempty"`
}

// Stats aggregates the host network collections.
type Stats struct {
	TotalInterfaces int
	UpInterfaces    int
	DownInterfaces  int
	TotalBridges    int
	TotalBonds      int
	TotalVLANs      int
	TotalRxBytes    int64
	TotalTxBytes    int64
}
